package expression

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RowVariable exposes the whole row as a map, for column names that are not identifiers
const RowVariable = "row"

// Engine compiles and evaluates validation rule conditions with expr
type Engine struct {
	programCache map[string]*vm.Program
	now          func() time.Time
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
		now:          time.Now,
	}
}

// WithClock replaces the time source behind TODAY() and NOW()
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.programCache = make(map[string]*vm.Program)
	return e
}

// Env builds the evaluation environment for a row: each column name maps to
// its typed value, and RowVariable holds the same pairs as a map.
func Env(values map[string]any) map[string]any {
	env := make(map[string]any, len(values)+1)
	row := make(map[string]any, len(values))
	for k, v := range values {
		env[k] = v
		row[k] = v
	}
	env[RowVariable] = row
	return env
}

// Validate checks that condition compiles against the given column names and
// yields a boolean
func (e *Engine) Validate(condition string, columnNames []string) error {
	if strings.TrimSpace(condition) == "" {
		return fmt.Errorf("condition is empty")
	}
	names := append([]string(nil), columnNames...)
	sort.Strings(names)
	typed := make(map[string]any, len(names))
	for _, n := range names {
		typed[n] = nil
	}
	options := append(e.functions(), expr.Env(Env(typed)), expr.AsBool())
	if _, err := expr.Compile(condition, options...); err != nil {
		return err
	}
	return nil
}

// EvaluateBool runs condition against env and reports its result
func (e *Engine) EvaluateBool(condition string, env map[string]any) (bool, error) {
	program, err := e.getProgram(condition)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", out)
	}
	return b, nil
}

func (e *Engine) getProgram(condition string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[condition]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[condition]; ok {
		return prog, nil
	}

	options := append(e.functions(), expr.AllowUndefinedVariables(), expr.AsBool())
	program, err := expr.Compile(condition, options...)
	if err != nil {
		return nil, err
	}
	e.programCache[condition] = program
	return program, nil
}

func (e *Engine) functions() []expr.Option {
	now := e.now
	return []expr.Option{
		expr.Function("TODAY", func(params ...any) (any, error) {
			n := now().UTC()
			return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC), nil
		}),
		expr.Function("NOW", func(params ...any) (any, error) {
			return now().UTC(), nil
		}),
		expr.Function("ISBLANK", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("ISBLANK requires 1 argument")
			}
			switch v := params[0].(type) {
			case nil:
				return true, nil
			case string:
				return strings.TrimSpace(v) == "", nil
			case []string:
				return len(v) == 0, nil
			}
			return false, nil
		}),
		expr.Function("LEN", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LEN requires 1 argument")
			}
			switch v := params[0].(type) {
			case nil:
				return 0, nil
			case string:
				return len([]rune(v)), nil
			case []string:
				return len(v), nil
			}
			return nil, fmt.Errorf("LEN argument must be text or a list")
		}),
		expr.Function("UPPER", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("UPPER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("UPPER argument must be string")
			}
			return strings.ToUpper(s), nil
		}),
		expr.Function("LOWER", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LOWER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("LOWER argument must be string")
			}
			return strings.ToLower(s), nil
		}),
		expr.Function("IF", func(params ...any) (any, error) {
			if len(params) != 3 {
				return nil, fmt.Errorf("IF requires 3 arguments (condition, true_value, false_value)")
			}
			cond, ok := params[0].(bool)
			if !ok {
				return nil, fmt.Errorf("IF condition must be boolean")
			}
			if cond {
				return params[1], nil
			}
			return params[2], nil
		}),
		expr.Function("DAYS_BETWEEN", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("DAYS_BETWEEN requires 2 arguments")
			}
			a, okA := params[0].(time.Time)
			b, okB := params[1].(time.Time)
			if !okA || !okB {
				return nil, fmt.Errorf("DAYS_BETWEEN arguments must be dates")
			}
			return int(b.Sub(a).Hours() / 24), nil
		}),
	}
}
