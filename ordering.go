package keypager

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Direction defines the sort direction for the requested dataset.
type Direction string

const (
	DirectionASC  Direction = "ASC"
	DirectionDESC Direction = "DESC"
)

// ParseDirection parses a sort direction case-insensitively. An empty string
// means ascending.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case "":
		return DirectionASC, nil
	case DirectionASC, DirectionDESC:
		return d, nil
	default:
		return "", fmt.Errorf("%w: invalid ordering direction '%s'", ErrInvalidSort, s)
	}
}

func (o Direction) Valid() bool {
	return o == DirectionASC || o == DirectionDESC
}

// Reverse returns the opposite direction.
func (o Direction) Reverse() Direction {
	return lo.Ternary(o == DirectionDESC, DirectionASC, DirectionDESC)
}

// ForOperator returns the strict operator selecting rows that come after a
// boundary when the dataset is executed in this direction.
func (o Direction) ForOperator() Operator {
	switch o {
	case DirectionASC:
		return OperatorGT
	case DirectionDESC:
		return OperatorLT
	default:
		panic(fmt.Errorf("cannot map direction '%s' to operator", o))
	}
}

type (
	// Orderings is a sort key: columns in priority order, primary first.
	Orderings []OrderBy
	OrderBy   struct {
		Column    string
		Direction Direction
	}

	ColumnAlias = string

	// ColumnMapping maps external column aliases to fully qualified column names.
	// Use it when bare column names could cause an "ambiguous column name" error.
	// Key is an external alias, value is an internal column name.
	ColumnMapping = map[ColumnAlias]string
)

var _availableColumnNameSymbols = append([]rune("_.'`\""), lo.AlphanumericCharset...)

func (o OrderBy) validate() error {
	if !o.Direction.Valid() {
		return fmt.Errorf("%w: invalid ordering direction '%s'", ErrInvalidSort, o.Direction)
	}

	if o.Column == "" {
		return fmt.Errorf("%w: empty ordering column", ErrInvalidSort)
	}

	// Guard against SQL injection by restricting allowed characters in column names.
	if !lo.Every(_availableColumnNameSymbols, []rune(o.Column)) {
		return fmt.Errorf("%w: ordering column name contains forbidden symbols '%s'", ErrInvalidSort, o.Column)
	}

	return nil
}

// Columns returns the column names in priority order.
func (o Orderings) Columns() []string {
	return lo.Map(o, func(item OrderBy, _ int) string {
		return item.Column
	})
}

// Reverse returns a copy with every direction flipped. Column priority is kept.
func (o Orderings) Reverse() Orderings {
	return lo.Map(o, func(item OrderBy, _ int) OrderBy {
		return OrderBy{Column: item.Column, Direction: item.Direction.Reverse()}
	})
}

// ToSQLSlice converts Orderings to a slice of strings in the form
// "<order_column> <order_direction>" suitable for SQL query builders.
//
// Example: for Orderings: [{"a", "ASC"}, {"b", "DESC"}] returns ["a ASC", "b DESC"].
func (o Orderings) ToSQLSlice() []string {
	ret := make([]string, 0, len(o))
	for _, ordering := range o {
		ret = append(ret, fmt.Sprintf("%s %s", ordering.Column, ordering.Direction))
	}

	return ret
}

// ToSQL converts Orderings to a single string
// "<order_column_1> <order_direction_1>, <order_column_2> <order_direction_2>"
// suitable for embedding into an SQL query.
// Example: for [{"a", "ASC"}, {"b", "DESC"}] returns "a ASC, b DESC".
//
// Usage:
//
//	query := fmt.Sprintf("SELECT * FROM table ORDER BY %s", orderings.ToSQL())
func (o Orderings) ToSQL() string {
	return strings.Join(o.ToSQLSlice(), ", ")
}

// Apply appends the ordering to a gorm query.
func (o Orderings) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(o.ToSQL())
}

// Replace returns a copy of the query ordered by these orderings only. Any
// ORDER BY previously declared on the query is dropped from the copy.
func (o Orderings) Replace(db *gorm.DB) *gorm.DB {
	tx := cloneQuery(db)
	delete(tx.Statement.Clauses, "ORDER BY")

	return o.Apply(tx)
}

func (o Orderings) validate() error {
	if len(o) == 0 {
		return fmt.Errorf("%w: empty ordering list", ErrInvalidSort)
	}

	seen := make(map[string]struct{}, len(o))
	for _, ordering := range o {
		if err := ordering.validate(); err != nil {
			return err
		}

		if _, ok := seen[ordering.Column]; ok {
			return fmt.Errorf("%w: duplicate ordering column '%s'", ErrInvalidSort, ordering.Column)
		}
		seen[ordering.Column] = struct{}{}
	}

	return nil
}

// ParseSort builds Orderings from a list of strings in the format
// "column [asc|desc]". Column aliases are resolved via ColumnMapping.
// Returns an error if an alias is not found in the mapping.
func ParseSort(stringsOrderings []string, columnMapping ColumnMapping) (Orderings, error) {
	ret := make([]OrderBy, 0, len(stringsOrderings))
	aliases := lo.Keys(columnMapping)
	slices.Sort(aliases)

	for _, stringOrdering := range stringsOrderings {
		columnAlias, direction, err := parseOrderingTerm(stringOrdering)
		if err != nil {
			return nil, err
		}

		columnName := columnMapping[columnAlias]
		if columnName == "" {
			return nil, fmt.Errorf("%w: invalid column alias. closest: '%s'", ErrInvalidSort, closestAlias(columnAlias, aliases))
		}

		ret = append(ret, OrderBy{
			Column:    columnName,
			Direction: direction,
		})
	}

	return ret, nil
}

// DeclaredOrderings reads the ORDER BY clause of a gorm query. Both raw
// orderings (db.Order("age desc, id")) and clause.OrderByColumn values are
// understood. A query without ORDER BY yields an empty result.
func DeclaredOrderings(db *gorm.DB) (Orderings, error) {
	if db == nil || db.Statement == nil {
		return nil, nil
	}

	c, ok := db.Statement.Clauses["ORDER BY"]
	if !ok {
		return nil, nil
	}

	orderBy, ok := c.Expression.(clause.OrderBy)
	if !ok || orderBy.Expression != nil {
		return nil, fmt.Errorf("%w: unsupported order by expression", ErrInvalidSort)
	}

	var ret Orderings
	for _, column := range orderBy.Columns {
		if !column.Column.Raw {
			name := column.Column.Name
			if column.Column.Table != "" {
				name = column.Column.Table + "." + name
			}

			ret = append(ret, OrderBy{
				Column:    name,
				Direction: lo.Ternary(column.Desc, DirectionDESC, DirectionASC),
			})

			continue
		}

		for _, term := range strings.Split(column.Column.Name, ",") {
			name, direction, err := parseOrderingTerm(term)
			if err != nil {
				return nil, err
			}

			ret = append(ret, OrderBy{Column: name, Direction: direction})
		}
	}

	return ret, nil
}

func parseOrderingTerm(term string) (string, Direction, error) {
	fields := strings.Fields(term)

	switch len(fields) {
	case 1:
		return fields[0], DirectionASC, nil
	case 2:
		direction, err := ParseDirection(fields[1])
		if err != nil {
			return "", "", err
		}

		return fields[0], direction, nil
	default:
		return "", "", fmt.Errorf("%w: invalid ordering string format '%s'", ErrInvalidSort, term)
	}
}

func closestAlias(input ColumnAlias, dataSet []ColumnAlias) ColumnAlias {
	minDist := math.MaxInt
	closest := ""

	for _, dataSetAlias := range dataSet {
		dist := levenshtein([]rune(dataSetAlias), []rune(input))
		if dist < minDist {
			minDist = dist
			closest = dataSetAlias
		}
	}

	return closest
}
