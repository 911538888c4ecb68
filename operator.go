package keypager

import "fmt"

// Operator defines a comparison operator for filtering by column.
// Used in seek conditions.
type Operator string

// Inclusive returns the non-strict counterpart of a strict operator:
// ">" becomes ">=" and "<" becomes "<=".
func (o Operator) Inclusive() Operator {
	switch o {
	case OperatorGT:
		return operatorGTE
	case OperatorLT:
		return operatorLTE
	default:
		panic(fmt.Errorf("operator '%s' has no inclusive form", o))
	}
}

const (
	OperatorGT Operator = ">"
	OperatorLT Operator = "<"

	// Private operators are used ONLY while building seek conditions.
	operatorGTE Operator = ">="
	operatorLTE Operator = "<="
	operatorEq  Operator = "="
)
