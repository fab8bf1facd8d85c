package mail

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/lebensspur/sentinel/internal/types"
)

// predicateEnv is the evaluation environment a group's SendIf expression
// runs against — it mirrors types.DispatchContext's fields by name so
// operators write expressions like "AlarmIndex >= 1 && !IsFinal".
type predicateEnv struct {
	AlarmIndex       int
	IsFinal          bool
	RemainingMinutes float64
}

// CompilePredicate compiles a group's SendIf expression. An empty
// expression compiles to a predicate that always returns true ("always
// send"), matching spec.md §3's default. This is the one place
// github.com/expr-lang/expr is wired in, letting an operator gate a
// group's delivery (e.g. only escalate a secondary group on the final
// alert) without a firmware update.
func CompilePredicate(src string) (*vm.Program, error) {
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(predicateEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compile send_if expression %q", src)
	}
	return program, nil
}

// EvalPredicate runs a compiled predicate (nil means "always true")
// against ctx.
func EvalPredicate(program *vm.Program, ctx types.DispatchContext) (bool, error) {
	if program == nil {
		return true, nil
	}
	env := predicateEnv{AlarmIndex: ctx.AlarmIndex, IsFinal: ctx.IsFinal, RemainingMinutes: ctx.RemainingMinutes}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, errors.Wrap(err, "evaluate send_if expression")
	}
	b, ok := out.(bool)
	if !ok {
		return false, errors.New("send_if expression did not return a boolean")
	}
	return b, nil
}
