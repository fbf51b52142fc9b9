package reports

import (
	"context"

	"nexile-backend/internal/scope"

	"github.com/jmoiron/sqlx"
)

// BranchTotals groups transactions of the period by branch.
func BranchTotals(ctx context.Context, db *sqlx.DB, vis scope.Visibility, p Period) ([]BranchTotal, error) {
	query := `
		SELECT branch_id,
		       COUNT(*) AS tx_count,
		       COALESCE(SUM(total_amount), 0) AS revenue
		FROM transactions
		WHERE date >= ? AND date < ?`
	args := []any{p.From, p.End()}

	if !vis.IsAll() {
		ids := vis.BranchIDs()
		if len(ids) == 0 {
			return []BranchTotal{}, nil
		}
		q, inArgs, err := sqlx.In(` AND branch_id IN (?)`, ids)
		if err != nil {
			return nil, err
		}
		query += q
		args = append(args, inArgs...)
	}
	query += `
		GROUP BY branch_id
		ORDER BY branch_id`

	var rows []BranchTotal
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}
