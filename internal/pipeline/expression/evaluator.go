// Package expression compiles and runs expr-lang expressions over row values
package expression

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// ValuesVariable holds every input value keyed by its full column name
	ValuesVariable = "values"
	// ColumnFunction looks up an input value by full or unambiguous bare
	// column name: col("customers.email")
	ColumnFunction = "col"
)

var identifierUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Evaluator compiles expressions once and keeps the programs in a go-cache
// so nodes sharing an expression share the program. Programs are immutable
// and safe to run from many goroutines.
type Evaluator struct {
	programs *gocache.Cache
	maxItems int
}

// NewEvaluator creates an evaluator whose cached programs expire after ttl
// of disuse
func NewEvaluator(ttl time.Duration) *Evaluator {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Evaluator{
		programs: gocache.New(ttl, 2*ttl),
		maxItems: 1000,
	}
}

// CompilePredicate compiles an expression that must evaluate to a bool
func (e *Evaluator) CompilePredicate(expression string) (*vm.Program, error) {
	return e.compile("bool:"+expression, expression, expr.AsBool())
}

// Compile compiles an expression of any result type
func (e *Evaluator) Compile(expression string) (*vm.Program, error) {
	return e.compile("any:"+expression, expression)
}

func (e *Evaluator) compile(key, expression string, extra ...expr.Option) (*vm.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	if cached, found := e.programs.Get(key); found {
		// Touch so frequently used programs stay
		e.programs.SetDefault(key, cached)
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(expression, append(Options(), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	if e.programs.ItemCount() >= e.maxItems {
		e.programs.DeleteExpired()
	}
	if e.programs.ItemCount() < e.maxItems {
		e.programs.SetDefault(key, program)
	}
	return program, nil
}

// Run evaluates program against env
func (e *Evaluator) Run(program *vm.Program, env map[string]interface{}) (interface{}, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return out, nil
}

// Cached returns the number of cached programs
func (e *Evaluator) Cached() int {
	return e.programs.ItemCount()
}

// Identifier turns a column reference into the variable name expressions
// use for it: "customers.email" becomes "customers_email"
func Identifier(column string) string {
	id := identifierUnsafe.ReplaceAllString(column, "_")
	if id != "" && id[0] >= '0' && id[0] <= '9' {
		id = "_" + id
	}
	return id
}

// RowEnv builds the variables of one evaluation: each column under its
// identifier, the bare column name when it is unambiguous, all values
// under ValuesVariable and the ColumnFunction lookup
func RowEnv(columns []string, values []interface{}) map[string]interface{} {
	env := make(map[string]interface{}, 2*len(columns)+1)
	byName := make(map[string]interface{}, len(columns))

	bare := make(map[string]int, len(columns))
	for _, c := range columns {
		bare[shortName(c)]++
	}

	for i, c := range columns {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		byName[c] = v
		env[Identifier(c)] = v
		if short := shortName(c); bare[short] == 1 {
			if _, taken := env[Identifier(short)]; !taken {
				env[Identifier(short)] = v
			}
		}
	}
	env[ValuesVariable] = byName
	env[ColumnFunction] = func(name string) interface{} {
		if v, ok := byName[name]; ok {
			return v
		}
		if bare[name] != 1 {
			return nil
		}
		for c, v := range byName {
			if shortName(c) == name {
				return v
			}
		}
		return nil
	}
	return env
}

func shortName(column string) string {
	if i := strings.LastIndex(column, "."); i >= 0 {
		return column[i+1:]
	}
	return column
}
