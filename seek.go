package keypager

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type (
	// tPredicate is a boolean condition over columns that can be rendered as a
	// gorm expression or as plain SQL with "?" placeholders.
	tPredicate interface {
		toGORMExpression() clause.Expression
		toSQLClause() (string, []driver.Value)
	}

	// tComparison is the condition "Column Operator Value".
	tComparison struct {
		Column   string
		Value    any
		Operator Operator
	}

	// tConjunction joins its members with AND.
	tConjunction []tPredicate

	// tDisjunction joins its members with OR.
	tDisjunction []tPredicate

	// tContradiction never holds.
	tContradiction struct{}
)

// seekElement is one sort key column of a seek: the boundary value and the
// strict operator selecting rows after it in execution order.
type seekElement struct {
	Column   string
	Value    any
	Operator Operator
}

func (e seekElement) strict() tComparison {
	return tComparison{Column: e.Column, Value: e.Value, Operator: e.Operator}
}

func (e seekElement) inclusive() tComparison {
	return tComparison{Column: e.Column, Value: e.Value, Operator: e.Operator.Inclusive()}
}

func (e seekElement) equal() tComparison {
	return tComparison{Column: e.Column, Value: e.Value, Operator: operatorEq}
}

// seekElements pairs the sort key with a decoded boundary point. The
// comparison side follows the direction the query is executed in, so a
// backward page over an ascending column looks for smaller values.
func seekElements(resolution SortResolution, position map[string]any, direction PageDirection) []seekElement {
	return lo.Map(resolution.ExecutionOrder(direction), func(orderBy OrderBy, _ int) seekElement {
		return seekElement{
			Column:   orderBy.Column,
			Value:    position[orderBy.Column],
			Operator: orderBy.Direction.ForOperator(),
		}
	})
}

// compileSeek builds the condition selecting rows strictly after the boundary
// in lexicographic sort key order:
//
//	(c0, c1, ... cn) > (v0, v1, ... vn)
//
// For more than one column the result is
//
//	c0 >= v0 AND (c0 > v0 OR (<prior equalities> AND compileSeek(rest)))
//
// where prior holds the columns consumed above the current level. The
// leading inclusive comparison is implied by the disjunction but lets the
// planner range scan an index on c0. Comparisons flip to < and <= for
// columns executed in descending order.
func compileSeek(seek []seekElement, prior []seekElement) tPredicate {
	switch len(seek) {
	case 0:
		return tContradiction{}
	case 1:
		return seek[0].strict()
	}

	head := seek[0]

	tie := make(tConjunction, 0, len(prior)+1)
	for _, p := range prior {
		tie = append(tie, p.equal())
	}
	tie = append(tie, compileSeek(seek[1:], append(slices.Clip(prior), head)))

	return tConjunction{
		head.inclusive(),
		tDisjunction{head.strict(), tie.simplify()},
	}
}

// simplify unwraps a conjunction of a single member.
func (c tConjunction) simplify() tPredicate {
	if len(c) == 1 {
		return c[0]
	}

	return c
}

// toGORMExpression converts a comparison into "Column Operator ?".
//
// Example:
//
//	tComparison = { Column: "id", Operator: ">", Value: 123}
//
// Result:
//
//	clause.Expr{SQL: "id > ?", Vars: [123]}
func (c tComparison) toGORMExpression() clause.Expression {
	sqlClause, args := c.toSQLClause()

	return clause.Expr{
		SQL:  sqlClause,
		Vars: lo.Map(args, func(item driver.Value, _ int) any { return item }),
	}
}

// toSQLClause converts a comparison to "Column Operator ?" with the value
// for the placeholder.
//
// Example:
//
//	tComparison = { Column: "id", Operator: ">", Value: 123}
//
// Result:
//
//	("id > ?", [123])
func (c tComparison) toSQLClause() (string, []driver.Value) {
	return fmt.Sprintf("%s %s ?", c.Column, c.Operator), []driver.Value{c.Value}
}

func (c tConjunction) toGORMExpression() clause.Expression {
	return clause.And(toGORMExpressions(c)...)
}

// toSQLClause renders "(A AND B ...)". A single member is rendered as is.
func (c tConjunction) toSQLClause() (string, []driver.Value) {
	return joinSQLClauses(c, " AND ")
}

func (d tDisjunction) toGORMExpression() clause.Expression {
	return clause.Or(toGORMExpressions(d)...)
}

// toSQLClause renders "(A OR B ...)". A single member is rendered as is.
func (d tDisjunction) toSQLClause() (string, []driver.Value) {
	return joinSQLClauses(d, " OR ")
}

func (tContradiction) toGORMExpression() clause.Expression {
	return clause.Expr{SQL: "FALSE"}
}

func (tContradiction) toSQLClause() (string, []driver.Value) {
	return "FALSE", nil
}

func toGORMExpressions(predicates []tPredicate) []clause.Expression {
	return lo.Map(predicates, func(item tPredicate, _ int) clause.Expression {
		return item.toGORMExpression()
	})
}

func joinSQLClauses(predicates []tPredicate, sep string) (string, []driver.Value) {
	if len(predicates) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(predicates))
	values := make([]driver.Value, 0, len(predicates))
	for _, predicate := range predicates {
		sqlClause, args := predicate.toSQLClause()
		clauses = append(clauses, sqlClause)
		values = append(values, args...)
	}

	if len(clauses) == 1 {
		return clauses[0], values
	}

	return fmt.Sprintf("(%s)", strings.Join(clauses, sep)), values
}
