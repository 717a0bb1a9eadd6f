package expr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/symopt/symopt/pkg/affine"
	"github.com/symopt/symopt/pkg/ops"
)

// Environment resolves variable references to their bound expression values.
type Environment interface {
	Resolve(name string) (*affine.Matrix, error)
}

// EnvironmentFunc adapts a function to the Environment interface.
type EnvironmentFunc func(name string) (*affine.Matrix, error)

// Resolve implements Environment.
func (f EnvironmentFunc) Resolve(name string) (*affine.Matrix, error) {
	return f(name)
}

// Result is the outcome of evaluating an expression: exactly one field is
// set. Plain algebra yields a Value, comparisons a Constraint, and the
// Minimize/Maximize markers an Objective.
type Result struct {
	Value      *affine.Matrix
	Constraint *affine.Constraint
	Objective  *affine.Objective
}

// Evaluate walks the AST against the environment and produces a solver-ready
// result.
func Evaluate(node Node, env Environment) (*Result, error) {
	switch n := node.(type) {
	case *Literal:
		return &Result{Value: affine.Scalar(n.Value)}, nil

	case *VariableRef:
		value, err := env.Resolve(n.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s'", ErrUnresolvedToken, n.Name)
		}
		return &Result{Value: value}, nil

	case *UnaryOp:
		operand, err := evaluateValue(n.Operand, env)
		if err != nil {
			return nil, err
		}
		return &Result{Value: affine.Neg(operand)}, nil

	case *BinaryOp:
		return evaluateBinary(n, env)

	case *Call:
		return evaluateCall(n, env)

	default:
		return nil, fmt.Errorf("%w: unsupported AST node %T", ErrSyntax, node)
	}
}

// evaluateValue evaluates a node that must yield a plain value.
func evaluateValue(node Node, env Environment) (*affine.Matrix, error) {
	result, err := Evaluate(node, env)
	if err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, fmt.Errorf("%w: expected a value expression", ErrBadOperand)
	}

	return result.Value, nil
}

func evaluateBinary(n *BinaryOp, env Environment) (*Result, error) {
	left, err := evaluateValue(n.Left, env)
	if err != nil {
		return nil, err
	}

	right, err := evaluateValue(n.Right, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+":
		v, opErr := affine.Add(left, right)
		return valueResult(v, opErr)
	case "-":
		v, opErr := affine.Sub(left, right)
		return valueResult(v, opErr)
	case "*":
		v, opErr := affine.Mul(left, right)
		return valueResult(v, opErr)
	case "@":
		v, opErr := affine.MatMul(left, right)
		return valueResult(v, opErr)
	case "==":
		c, opErr := affine.Compare(left, right, affine.Eq)
		return constraintResult(c, opErr)
	case "<=":
		c, opErr := affine.Compare(left, right, affine.Le)
		return constraintResult(c, opErr)
	case ">=":
		c, opErr := affine.Compare(left, right, affine.Ge)
		return constraintResult(c, opErr)
	default:
		return nil, fmt.Errorf("%w: operator '%s'", ErrSyntax, n.Op)
	}
}

func evaluateCall(n *Call, env Environment) (*Result, error) {
	if n.Func == "Minimize" || n.Func == "Maximize" {
		return evaluateObjective(n, env)
	}

	args := make([]*affine.Matrix, len(n.Args))
	for i, argNode := range n.Args {
		arg, err := evaluateValue(argNode, env)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	switch n.Func {
	case "tran":
		if err := checkArityRange(n, 1, 1); err != nil {
			return nil, err
		}
		return &Result{Value: affine.Transpose(args[0])}, nil

	case "diag":
		if err := checkArityRange(n, 1, 1); err != nil {
			return nil, err
		}
		v, err := affine.Diag(args[0])
		return valueResult(v, err)

	case "sum":
		if err := checkArityRange(n, 1, 1); err != nil {
			return nil, err
		}
		return &Result{Value: affine.Sum(args[0])}, nil

	case "mult":
		if err := checkArityRange(n, 2, 2); err != nil {
			return nil, err
		}
		v, err := affine.Mul(args[0], args[1])
		return valueResult(v, err)

	case "shift":
		return evaluateNumeric(n, args, 2, 2, func(values []*mat.Dense) (*mat.Dense, error) {
			return ops.Shift(values[0], values[1])
		})

	case "pow":
		return evaluateNumeric(n, args, 2, 2, func(values []*mat.Dense) (*mat.Dense, error) {
			return ops.Power(values[0], values[1])
		})

	case "minv":
		return evaluateNumeric(n, args, 1, 1, func(values []*mat.Dense) (*mat.Dense, error) {
			return ops.MatrixInverse(values[0])
		})

	case "annuity":
		return evaluateNumeric(n, args, 2, 3, func(values []*mat.Dense) (*mat.Dense, error) {
			var rate *mat.Dense
			if len(values) == 3 {
				rate = values[2]
			}
			return ops.Annuity(values[0], values[1], rate)
		})

	case "weib":
		return evaluateNumeric(n, args, 4, 4, func(values []*mat.Dense) (*mat.Dense, error) {
			dims, err := ops.AsScalar(values[3])
			if err != nil {
				return nil, err
			}
			return ops.Weibull(values[0], values[1], values[2], int(dims), ops.WeibullRounding)
		})

	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownFunction, n.Func)
	}
}

func evaluateObjective(n *Call, env Environment) (*Result, error) {
	if err := checkArityRange(n, 1, 1); err != nil {
		return nil, err
	}

	value, err := evaluateValue(n.Args[0], env)
	if err != nil {
		return nil, err
	}

	sense := affine.Minimize
	if n.Func == "Maximize" {
		sense = affine.Maximize
	}

	objective, err := affine.NewObjective(sense, value)
	if err != nil {
		return nil, fmt.Errorf("%s operand: %w", n.Func, err)
	}

	return &Result{Objective: objective}, nil
}

// evaluateNumeric applies one of the purely numeric grammar operators, which
// require constant operands.
func evaluateNumeric(
	n *Call,
	args []*affine.Matrix,
	minArgs, maxArgs int,
	apply func([]*mat.Dense) (*mat.Dense, error),
) (*Result, error) {
	if err := checkArityRange(n, minArgs, maxArgs); err != nil {
		return nil, err
	}

	values := make([]*mat.Dense, len(args))
	for i, arg := range args {
		v, err := arg.ConstantValue()
		if err != nil {
			return nil, fmt.Errorf("'%s' argument %d: %w", n.Func, i+1, err)
		}
		values[i] = v
	}

	out, err := apply(values)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w", n.Func, err)
	}

	return &Result{Value: affine.Constant(out)}, nil
}

func checkArityRange(n *Call, minArgs, maxArgs int) error {
	if len(n.Args) < minArgs || len(n.Args) > maxArgs {
		if minArgs == maxArgs {
			return fmt.Errorf("%w: '%s' takes %d, got %d", ErrArity, n.Func, minArgs, len(n.Args))
		}
		return fmt.Errorf("%w: '%s' takes %d to %d, got %d", ErrArity, n.Func, minArgs, maxArgs, len(n.Args))
	}

	return nil
}

func valueResult(v *affine.Matrix, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}

	return &Result{Value: v}, nil
}

func constraintResult(c *affine.Constraint, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}

	return &Result{Constraint: c}, nil
}
