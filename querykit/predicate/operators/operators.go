package operators

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

type Operator string

const (
	// Comparison

	OperatorEq  Operator = "="
	OperatorNe  Operator = "!="
	OperatorGt  Operator = ">"
	OperatorLt  Operator = "<"
	OperatorGte Operator = ">="
	OperatorLte Operator = "<="

	// Membership and pattern matching

	OperatorIn   Operator = "IN"
	OperatorLike Operator = "LIKE"

	// Logical

	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
	OperatorNot Operator = "NOT"

	// Postfix

	OperatorIsNull    Operator = "IS NULL"
	OperatorIsNotNull Operator = "IS NOT NULL"
)

// ErrInvalidOperand reports an operand whose type is incompatible with the
// operator it is combined with.
var ErrInvalidOperand = errors.New("invalid operand")

// Comparable reports whether op is a binary comparison taking a single
// scalar operand.
func Comparable(op Operator) bool {
	switch op {
	case OperatorEq, OperatorNe, OperatorGt, OperatorLt, OperatorGte, OperatorLte:
		return true
	}
	return false
}

// Postfix reports whether op renders after its operand and takes no value.
func Postfix(op Operator) bool {
	return op == OperatorIsNull || op == OperatorIsNotNull
}

// Validate checks operand compatibility for op. It is called once at
// predicate construction so a malformed comparison never reaches SQL
// generation.
func Validate(op Operator, operand any) error {
	switch {
	case op == OperatorIn:
		if operand == nil {
			return errors.Wrap(ErrInvalidOperand, "IN requires a sequence, got nil")
		}
		v := reflect.ValueOf(operand)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return errors.Wrapf(ErrInvalidOperand, "IN requires a sequence, got %T", operand)
		}
		if v.Len() == 0 {
			return errors.Wrap(ErrInvalidOperand, "IN requires a non-empty sequence")
		}
		return nil
	case op == OperatorLike:
		if _, ok := operand.(string); !ok {
			return errors.Wrapf(ErrInvalidOperand, "%s requires a string operand, got %T", op, operand)
		}
		return nil
	case Postfix(op):
		if operand != nil {
			return errors.Wrapf(ErrInvalidOperand, "%s takes no operand", op)
		}
		return nil
	case Comparable(op):
		if operand == nil {
			return errors.Wrapf(ErrInvalidOperand, "%s does not accept nil, use IS NULL", op)
		}
		if v := reflect.ValueOf(operand); v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
			return errors.Wrapf(ErrInvalidOperand, "%s does not accept a sequence, use IN", op)
		}
		return nil
	case op == OperatorAnd || op == OperatorOr || op == OperatorNot:
		return fmt.Errorf("operator %s is a combinator, not a leaf operator", op)
	}
	return fmt.Errorf("unknown operator %q", op)
}
