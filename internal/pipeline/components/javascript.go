package components

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/expression"
)

const TypeJavaScript = "javascript"

type javaScriptConfig struct {
	Script  string   `json:"script" validate:"required"`
	Outputs []string `json:"outputs" validate:"required,min=1,dive,identifier"`
	// FanOut makes the script return a list of results, one derived row each
	FanOut        bool   `json:"fan_out"`
	Timeout       string `json:"timeout" validate:"omitempty,duration"`
	EnableConsole bool   `json:"enable_console"`
}

// JavaScript runs a script per row. The script sees its inputs as
// values["table.column"] and as variables named like in expressions, and
// either defines function transform(values) or is the body of one. It
// returns a scalar for a single output or an array aligned with the
// outputs; with fan_out it returns an array of those.
type JavaScript struct {
	common.Base
	config  javaScriptConfig
	timeout time.Duration

	program  *goja.Program
	runtimes sync.Pool
}

func newJavaScript(r *Registry, def Definition) (core.Component, error) {
	var cfg javaScriptConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &JavaScript{
		Base:    r.base(def),
		config:  cfg,
		timeout: parseDuration(cfg.Timeout, 5*time.Second),
	}, nil
}

func (t *JavaScript) Validate() error {
	if err := t.RequireInputs(1, -1); err != nil {
		return err
	}
	if _, err := compileScript(t.config.Script); err != nil {
		return t.ConfigError("%v", err)
	}
	return nil
}

func (t *JavaScript) Initialize(context.Context) error {
	program, err := compileScript(t.config.Script)
	if err != nil {
		return err
	}
	t.program = program
	t.runtimes.New = func() interface{} { return t.newRuntime() }
	return nil
}

func (t *JavaScript) OutputColumns() []string { return t.config.Outputs }
func (t *JavaScript) FanOut() bool            { return t.config.FanOut }

func (t *JavaScript) Transform(ctx context.Context, in core.Input, emit core.Emitter) error {
	vm := t.runtimes.Get().(*goja.Runtime)
	defer t.runtimes.Put(vm)

	env := expression.RowEnv(in.Columns, in.Values)
	for k, v := range env {
		if err := vm.Set(k, v); err != nil {
			return fmt.Errorf("setting variable %s: %w", k, err)
		}
	}

	deadline := time.AfterFunc(t.timeout, func() { vm.Interrupt("script timeout") })
	stop := context.AfterFunc(ctx, func() { vm.Interrupt("cancelled") })
	result, err := vm.RunProgram(t.program)
	deadline.Stop()
	stop()
	vm.ClearInterrupt()

	// Leftover variables must not leak into the next row
	for k := range env {
		_ = vm.GlobalObject().Delete(k)
	}

	if err != nil {
		return fmt.Errorf("script failed: %w", err)
	}
	return t.emitResult(result, emit)
}

func (t *JavaScript) emitResult(result goja.Value, emit core.Emitter) error {
	var exported interface{}
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		exported = result.Export()
	}

	if !t.config.FanOut {
		values, err := t.align(exported)
		if err != nil {
			return err
		}
		emit(values...)
		return nil
	}

	if exported == nil {
		return nil
	}
	list, ok := exported.([]interface{})
	if !ok {
		return fmt.Errorf("fan_out script must return an array, got %T", exported)
	}
	for _, item := range list {
		values, err := t.align(item)
		if err != nil {
			return err
		}
		emit(values...)
	}
	return nil
}

// align maps one script result onto the output columns
func (t *JavaScript) align(v interface{}) ([]interface{}, error) {
	n := len(t.config.Outputs)
	if list, ok := v.([]interface{}); ok && n > 1 {
		if len(list) != n {
			return nil, fmt.Errorf("script returned %d values for %d outputs", len(list), n)
		}
		return list, nil
	}
	if n != 1 {
		return nil, fmt.Errorf("script must return an array of %d values, got %T", n, v)
	}
	return []interface{}{v}, nil
}

func (t *JavaScript) newRuntime() *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	// No dynamic code
	_ = vm.Set("eval", goja.Undefined())
	_ = vm.Set("Function", goja.Undefined())

	if t.config.EnableConsole {
		logger := t.Logger
		console := vm.NewObject()
		_ = console.Set("log", func(args ...interface{}) {
			logger.Info("script output", logging.String("message", fmt.Sprint(args...)))
		})
		_ = console.Set("error", func(args ...interface{}) {
			logger.Warn("script error output", logging.String("message", fmt.Sprint(args...)))
		})
		_ = vm.Set("console", console)
	}
	return vm
}

// compileScript wraps a bare body in a transform function
func compileScript(script string) (*goja.Program, error) {
	var src string
	if strings.Contains(script, "function transform(") {
		src = script + "\n;transform(values);"
	} else {
		src = "(function transform(values) {\n" + script + "\n})(values);"
	}
	program, err := goja.Compile("transform", src, true)
	if err != nil {
		return nil, fmt.Errorf("script compilation failed: %w", err)
	}
	return program, nil
}
