package keypager

import (
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// PageDirection is the direction of travel relative to the current page.
type PageDirection int

const (
	// Forward requests the rows immediately after the page.
	Forward PageDirection = iota
	// Backward requests the rows immediately before the page.
	Backward
)

func (d PageDirection) String() string {
	return lo.Ternary(d == Backward, "backward", "forward")
}

// SortResolution is the outcome of sort key resolution.
//
// SortKey is always expressed in the declared (forward) order. The ordering a
// query must actually execute under depends on the page direction and is
// returned by ExecutionOrder; callers install it on the query explicitly.
type SortResolution struct {
	SortKey Orderings
	// FromIdentity is true when nothing was declared and the identity key
	// was used instead.
	FromIdentity bool
}

// ResolveSortKey normalizes the declared ordering into a sort key. When no
// ordering is declared the identity columns are used, ascending.
func ResolveSortKey(declared Orderings, identity []string) SortResolution {
	if len(declared) > 0 {
		return SortResolution{
			SortKey: lo.Map(declared, func(item OrderBy, _ int) OrderBy {
				return OrderBy{
					Column:    item.Column,
					Direction: lo.Ternary(item.Direction == "", DirectionASC, item.Direction),
				}
			}),
		}
	}

	return SortResolution{
		SortKey: lo.Map(identity, func(column string, _ int) OrderBy {
			return OrderBy{Column: column, Direction: DirectionASC}
		}),
		FromIdentity: true,
	}
}

// ExecutionOrder returns the ordering the query has to be executed with.
// Backward pages run the sort key with every direction flipped.
func (r SortResolution) ExecutionOrder(direction PageDirection) Orderings {
	if direction == Backward {
		return r.SortKey.Reverse()
	}

	return r.SortKey
}

// identityColumns returns the primary key columns of the query's model. The
// fallback is used when the query has no parseable model.
func identityColumns(db *gorm.DB, fallback []string) []string {
	if db == nil || db.Statement == nil || db.Statement.Model == nil {
		return fallback
	}

	stmt := cloneQuery(db).Statement
	if err := stmt.Parse(stmt.Model); err != nil || stmt.Schema == nil {
		return fallback
	}

	if len(stmt.Schema.PrimaryFieldDBNames) == 0 {
		return fallback
	}

	return stmt.Schema.PrimaryFieldDBNames
}

// cloneQuery returns a query with its own copy of the statement, so clauses
// can be added or removed without touching the caller's query.
func cloneQuery(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{}).Clauses()
}
