package branch

var Create = create
