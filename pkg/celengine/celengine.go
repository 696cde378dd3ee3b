package celengine

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Env is the fixed evaluation environment for engagement-signal rules.
// Rules see the session context and the reported payload as dynamic maps,
// plus the identifiers of the session being signalled.
func Env() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("action_type", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// Compile validates and compiles an expression against the signal-rule env.
func Compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	return env.Program(ast)
}

// EvaluateBool runs a compiled rule and requires a boolean outcome.
func EvaluateBool(prg cel.Program, attrs map[string]interface{}) (bool, error) {
	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	val := out.Value()

	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", val, val)
	}

	return b, nil
}
