// Package scope turns a caller's role into the set of branches it may see.
//
// Pharmacists are pinned to their assigned branch. Managers see the union of their
// managed branches, or one of them. Owners see the whole tenant, or any one branch.
// Every list, report and dashboard query filters through a Visibility.
package scope

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"nexile-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	ErrNoAssignedBranch = errors.New("pharmacist has no assigned branch")
	ErrBranchForbidden  = errors.New("branch is outside the caller's scope")
	ErrBranchRequired   = errors.New("a single branch must be selected")
)

// Visibility is the typed visible-branch set for one request.
type Visibility struct {
	all       bool
	branchIDs []uint
}

func All() Visibility { return Visibility{all: true} }

func Branches(ids ...uint) Visibility {
	return Visibility{branchIDs: slices.Clone(ids)}
}

// IsAll reports whether every branch of the tenant is visible.
func (v Visibility) IsAll() bool { return v.all }

// BranchIDs returns the explicit branch list; nil when IsAll.
func (v Visibility) BranchIDs() []uint {
	if v.all {
		return nil
	}
	return slices.Clone(v.branchIDs)
}

func (v Visibility) Contains(branchID uint) bool {
	return v.all || slices.Contains(v.branchIDs, branchID)
}

// Single returns the branch when exactly one is visible.
func (v Visibility) Single() (uint, bool) {
	if !v.all && len(v.branchIDs) == 1 {
		return v.branchIDs[0], true
	}
	return 0, false
}

// Apply restricts q to rows whose column is inside the visible set.
func (v Visibility) Apply(q *gorm.DB, column string) *gorm.DB {
	if v.all {
		return q
	}
	if len(v.branchIDs) == 0 {
		return q.Where("1 = 0")
	}
	return q.Where(column+" IN ?", v.branchIDs)
}

// Key identifies the visible set, for cache keys.
func (v Visibility) Key() string {
	if v.all {
		return "all"
	}
	ids := slices.Clone(v.branchIDs)
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// Resolve computes the visible set for user. requested nil means "all" for managers and
// owners; pharmacists ignore nil and are pinned to their branch.
func Resolve(user *models.User, requested *uint) (Visibility, error) {
	switch user.Role {
	case models.RolePharmacist:
		if user.AssignedBranchID == nil {
			return Visibility{}, ErrNoAssignedBranch
		}
		if requested != nil && *requested != *user.AssignedBranchID {
			return Visibility{}, ErrBranchForbidden
		}
		return Branches(*user.AssignedBranchID), nil

	case models.RoleManager:
		managed := user.ManagedBranchIDs()
		if requested == nil {
			return Branches(managed...), nil
		}
		if !slices.Contains(managed, *requested) {
			return Visibility{}, ErrBranchForbidden
		}
		return Branches(*requested), nil

	case models.RoleOwner:
		if requested == nil {
			return All(), nil
		}
		return Branches(*requested), nil
	}
	return Visibility{}, ErrBranchForbidden
}

// Target resolves the one branch a write goes to.
func Target(user *models.User, requested *uint) (uint, error) {
	v, err := Resolve(user, requested)
	if err != nil {
		return 0, err
	}
	id, ok := v.Single()
	if !ok {
		return 0, ErrBranchRequired
	}
	return id, nil
}

// ParseBranchParam reads "all", "" or a numeric id.
func ParseBranchParam(raw string) (*uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, errors.New("branch_id must be 'all' or a positive integer")
	}
	bid := uint(id)
	return &bid, nil
}

// HTTPError maps scope errors to fiber errors.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrBranchRequired):
		return fiber.NewError(fiber.StatusBadRequest, "Please select a branch")
	case errors.Is(err, ErrNoAssignedBranch):
		return fiber.NewError(fiber.StatusForbidden, "No branch is assigned to this account")
	case errors.Is(err, ErrBranchForbidden):
		return fiber.NewError(fiber.StatusForbidden, "You do not have access to this branch")
	}
	return err
}

// FromQuery resolves the visible set from the ?branch_id= query parameter.
func FromQuery(c *fiber.Ctx, user *models.User) (Visibility, error) {
	requested, err := ParseBranchParam(c.Query("branch_id"))
	if err != nil {
		return Visibility{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	v, err := Resolve(user, requested)
	if err != nil {
		return Visibility{}, HTTPError(err)
	}
	return v, nil
}
