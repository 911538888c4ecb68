package keypager

import (
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"
)

func Test_tComparison_toExpression(t *testing.T) {
	timeNow := time.Now().UTC()
	timeNowStr, _ := timeNow.MarshalText()

	tests := []struct {
		name       string
		comparison tComparison
		wantSQL    string
		wantVars   []interface{}
	}{
		{
			name:       "string less than",
			comparison: tComparison{Column: "name", Operator: OperatorLT, Value: "abc"},
			wantSQL:    "name < ?",
			wantVars:   []interface{}{"abc"},
		},
		{
			name:       "timestamp greater than",
			comparison: tComparison{Column: "created_at", Operator: OperatorGT, Value: timeNow},
			wantSQL:    "created_at > ?",
			wantVars:   []interface{}{timeNow},
		},
		{
			name:       "timestamp text is bound as text",
			comparison: tComparison{Column: "code", Operator: OperatorGT, Value: string(timeNowStr)},
			wantSQL:    "code > ?",
			wantVars:   []interface{}{string(timeNowStr)},
		},
		{
			name:       "integer inclusive",
			comparison: tComparison{Column: "id", Operator: operatorLTE, Value: 10},
			wantSQL:    "id <= ?",
			wantVars:   []interface{}{10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clauseExpr, ok := tt.comparison.toGORMExpression().(clause.Expr)
			require.True(t, ok)

			if clauseExpr.SQL != tt.wantSQL {
				t.Errorf("unexpected SQL: got %s, want %s", clauseExpr.SQL, tt.wantSQL)
			}

			require.Len(t, clauseExpr.Vars, len(tt.wantVars))
			for i, wantVar := range tt.wantVars {
				if clauseExpr.Vars[i] != wantVar {
					t.Errorf("unexpected var[%d]: got %v, want %v", i, clauseExpr.Vars[i], wantVar)
				}
			}
		})
	}
}

func Test_compileSeek_toSQLClause(t *testing.T) {
	tests := []struct {
		name     string
		seek     []seekElement
		wantSQL  string
		wantVals []driver.Value
	}{
		{
			name:    "no columns never matches",
			seek:    nil,
			wantSQL: "FALSE",
		},
		{
			name:     "single column ascending",
			seek:     []seekElement{{Column: "id", Value: 5, Operator: OperatorGT}},
			wantSQL:  "id > ?",
			wantVals: []driver.Value{5},
		},
		{
			name:     "single column descending",
			seek:     []seekElement{{Column: "id", Value: 5, Operator: OperatorLT}},
			wantSQL:  "id < ?",
			wantVals: []driver.Value{5},
		},
		{
			name: "two columns",
			seek: []seekElement{
				{Column: "age", Value: 30, Operator: OperatorLT},
				{Column: "id", Value: 5, Operator: OperatorGT},
			},
			wantSQL:  "(age <= ? AND (age < ? OR id > ?))",
			wantVals: []driver.Value{30, 30, 5},
		},
		{
			name: "three columns carry prior equalities",
			seek: []seekElement{
				{Column: "a", Value: 1, Operator: OperatorGT},
				{Column: "b", Value: 2, Operator: OperatorGT},
				{Column: "c", Value: 3, Operator: OperatorLT},
			},
			wantSQL:  "(a >= ? AND (a > ? OR (b >= ? AND (b > ? OR (a = ? AND c < ?)))))",
			wantVals: []driver.Value{1, 1, 2, 2, 1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotVals := compileSeek(tt.seek, nil).toSQLClause()

			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, len(tt.wantVals), len(gotVals))
			for i := range tt.wantVals {
				assert.Equal(t, tt.wantVals[i], gotVals[i])
			}
		})
	}
}

func Test_compileSeek_doesNotAliasPrior(t *testing.T) {
	prior := make([]seekElement, 1, 4)
	prior[0] = seekElement{Column: "x", Value: 0, Operator: OperatorGT}

	seek := []seekElement{
		{Column: "a", Value: 1, Operator: OperatorGT},
		{Column: "b", Value: 2, Operator: OperatorGT},
		{Column: "c", Value: 3, Operator: OperatorGT},
	}

	sql1, _ := compileSeek(seek, prior).toSQLClause()
	sql2, _ := compileSeek(seek, prior).toSQLClause()

	require.Equal(t, sql1, sql2)
	require.Len(t, prior, 1)
}

// evalPredicate evaluates a compiled predicate against an integer row.
func evalPredicate(t *testing.T, p tPredicate, row map[string]int) bool {
	t.Helper()

	switch v := p.(type) {
	case tComparison:
		lhs, ok := row[v.Column]
		require.True(t, ok, "row has no column %s", v.Column)

		var rhs int
		switch value := v.Value.(type) {
		case int:
			rhs = value
		case int64:
			rhs = int(value)
		default:
			t.Fatalf("unexpected value type %T", v.Value)
		}

		switch v.Operator {
		case OperatorGT:
			return lhs > rhs
		case OperatorLT:
			return lhs < rhs
		case operatorGTE:
			return lhs >= rhs
		case operatorLTE:
			return lhs <= rhs
		case operatorEq:
			return lhs == rhs
		}
		t.Fatalf("unexpected operator %s", v.Operator)
	case tConjunction:
		for _, member := range v {
			if !evalPredicate(t, member, row) {
				return false
			}
		}
		return true
	case tDisjunction:
		for _, member := range v {
			if evalPredicate(t, member, row) {
				return true
			}
		}
		return false
	case tContradiction:
		return false
	}

	t.Fatalf("unexpected predicate %T", p)
	return false
}

// lexCompare compares rows by the sort key, -1 when a sorts before b.
func lexCompare(sortKey Orderings, a, b map[string]int) int {
	for _, orderBy := range sortKey {
		x, y := a[orderBy.Column], b[orderBy.Column]
		if x == y {
			continue
		}

		less := x < y
		if orderBy.Direction == DirectionDESC {
			less = !less
		}

		if less {
			return -1
		}

		return 1
	}

	return 0
}

func Test_compileSeek_CompositeCorrectness(t *testing.T) {
	resolution := ResolveSortKey(Orderings{
		{Column: "age", Direction: DirectionDESC},
		{Column: "id", Direction: DirectionASC},
	}, nil)
	position := map[string]any{"age": 30, "id": 5}

	predicate := compileSeek(seekElements(resolution, position, Forward), nil)

	tests := []struct {
		row  map[string]int
		want bool
	}{
		{map[string]int{"age": 30, "id": 9}, true},
		{map[string]int{"age": 25, "id": 1}, true},
		{map[string]int{"age": 30, "id": 3}, false},
		{map[string]int{"age": 35, "id": 1}, false},
		{map[string]int{"age": 30, "id": 5}, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.row), func(t *testing.T) {
			assert.Equal(t, tt.want, evalPredicate(t, predicate, tt.row))
		})
	}
}

func Test_compileSeek_LexicographicEquivalence(t *testing.T) {
	columns := []string{"a", "b", "c"}
	boundary := map[string]int{"a": 1, "b": 1, "c": 1}
	position := map[string]any{"a": 1, "b": 1, "c": 1}

	var rows []map[string]int
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			for c := 0; c < 3; c++ {
				rows = append(rows, map[string]int{"a": a, "b": b, "c": c})
			}
		}
	}

	directions := []Direction{DirectionASC, DirectionDESC}
	for _, da := range directions {
		for _, db := range directions {
			for _, dc := range directions {
				sortKey := Orderings{
					{Column: columns[0], Direction: da},
					{Column: columns[1], Direction: db},
					{Column: columns[2], Direction: dc},
				}
				resolution := ResolveSortKey(sortKey, nil)

				for _, direction := range []PageDirection{Forward, Backward} {
					name := fmt.Sprintf("%s %s", sortKey.ToSQL(), direction)
					predicate := compileSeek(seekElements(resolution, position, direction), nil)

					t.Run(name, func(t *testing.T) {
						for _, row := range rows {
							cmp := lexCompare(sortKey, row, boundary)
							want := cmp > 0
							if direction == Backward {
								want = cmp < 0
							}

							assert.Equal(t, want, evalPredicate(t, predicate, row), "row %v", row)
						}
					})
				}
			}
		}
	}
}

func Test_tPredicate_toGORMExpression(t *testing.T) {
	tests := []struct {
		name      string
		predicate tPredicate
		wantType  any
	}{
		{"contradiction", tContradiction{}, clause.Expr{}},
		{"comparison", tComparison{Column: "id", Operator: OperatorGT, Value: 1}, clause.Expr{}},
		{
			"conjunction",
			tConjunction{
				tComparison{Column: "id", Operator: OperatorGT, Value: 1},
				tComparison{Column: "age", Operator: OperatorGT, Value: 1},
			},
			clause.AndConditions{},
		},
		{
			"disjunction",
			tDisjunction{
				tComparison{Column: "id", Operator: OperatorGT, Value: 1},
				tComparison{Column: "age", Operator: OperatorGT, Value: 1},
			},
			clause.OrConditions{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.IsType(t, tt.wantType, tt.predicate.toGORMExpression())
		})
	}
}
