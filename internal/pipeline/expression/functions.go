package expression

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"analysis-engine/internal/pipeline/common"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func tagValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// Options returns the compile options shared by every expression: the row
// helper functions, disabled side-effecting builtins and tolerance for
// variables that are not known at compile time
func Options() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.DisableBuiltin("now"),
		expr.DisableBuiltin("date"),
		// values is a row variable, not the map builtin
		expr.DisableBuiltin("values"),

		expr.Function("isNull", isNullFunc, new(func(interface{}) bool)),
		expr.Function("isBlank", isBlankFunc, new(func(interface{}) bool)),
		expr.Function("isNumber", isNumberFunc, new(func(interface{}) bool)),
		expr.Function("toNumber", toNumberFunc),
		expr.Function("length", lengthFunc),
		expr.Function("coalesce", coalesceFunc),
		expr.Function("between", betweenFunc),
		expr.Function("inList", inListFunc),
		expr.Function("validate", validateFunc),
	}
}

func isNullFunc(params ...interface{}) (interface{}, error) {
	return params[0] == nil, nil
}

func isBlankFunc(params ...interface{}) (interface{}, error) {
	return common.IsBlank(params[0]), nil
}

func isNumberFunc(params ...interface{}) (interface{}, error) {
	_, err := common.ToFloat64(params[0])
	return err == nil, nil
}

func toNumberFunc(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("toNumber() requires exactly 1 argument")
	}
	if params[0] == nil {
		return nil, nil
	}
	return common.ToFloat64(params[0])
}

// lengthFunc counts characters, not bytes
func lengthFunc(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("length() requires exactly 1 argument")
	}
	if params[0] == nil {
		return 0, nil
	}
	return utf8.RuneCountInString(common.ToString(params[0])), nil
}

func coalesceFunc(params ...interface{}) (interface{}, error) {
	for _, p := range params {
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

func betweenFunc(params ...interface{}) (interface{}, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("between() requires exactly 3 arguments")
	}
	nums := make([]float64, 3)
	for i, p := range params {
		f, err := common.ToFloat64(p)
		if err != nil {
			return false, nil
		}
		nums[i] = f
	}
	return nums[0] >= nums[1] && nums[0] <= nums[2], nil
}

func inListFunc(params ...interface{}) (interface{}, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("inList() requires a value and at least one candidate")
	}
	if list, ok := params[1].([]interface{}); ok && len(params) == 2 {
		return lo.Contains(lo.Map(list, toText), toText(params[0], 0)), nil
	}
	return lo.Contains(lo.Map(params[1:], toText), toText(params[0], 0)), nil
}

func toText(v interface{}, _ int) string {
	return common.ToString(v)
}

// validateFunc checks a value against a validator tag, e.g.
// validate(email, "email")
func validateFunc(params ...interface{}) (interface{}, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("validate() requires exactly 2 arguments")
	}
	tag, ok := params[1].(string)
	if !ok || strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("validate() requires a tag string as second argument")
	}
	if params[0] == nil {
		return false, nil
	}
	return tagValidator().Var(params[0], tag) == nil, nil
}
