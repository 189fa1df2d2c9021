package components

import (
	"context"

	"github.com/expr-lang/expr/vm"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/expression"
)

const (
	TypeNullCheck   = "null_check"
	TypeExpression  = "expression"
	TypeNumberRange = "number_range"
)

// Filter categories
const (
	CategoryNull    = "NULL"
	CategoryNotNull = "NOT_NULL"
	CategoryValid   = "VALID"
	CategoryInvalid = "INVALID"
)

type nullCheckConfig struct {
	// EmptyAsNull treats blank strings as NULL
	EmptyAsNull bool `json:"empty_as_null"`
}

// NullCheck categorizes a row as NULL when any of its inputs is null
type NullCheck struct {
	common.Base
	config nullCheckConfig
}

func newNullCheck(r *Registry, def Definition) (core.Component, error) {
	var cfg nullCheckConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &NullCheck{Base: r.base(def), config: cfg}, nil
}

func (f *NullCheck) Validate() error { return f.RequireInputs(1, -1) }

func (f *NullCheck) Categories() []string { return []string{CategoryNull, CategoryNotNull} }

func (f *NullCheck) Categorize(_ context.Context, in core.Input) (string, error) {
	for _, v := range in.Values {
		if v == nil || (f.config.EmptyAsNull && common.IsBlank(v)) {
			return CategoryNull, nil
		}
	}
	return CategoryNotNull, nil
}

type expressionConfig struct {
	Expression string `json:"expression" validate:"required"`
}

// ExpressionFilter categorizes a row as VALID when a boolean expression
// over its inputs holds. Inputs are available as variables named after the
// column ("customers.email" as customers_email, or email when unambiguous)
// under values["customers.email"] and through col("customers.email").
type ExpressionFilter struct {
	common.Base
	config    expressionConfig
	evaluator *expression.Evaluator
	program   *vm.Program
}

func newExpressionFilter(r *Registry, def Definition) (core.Component, error) {
	var cfg expressionConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &ExpressionFilter{Base: r.base(def), config: cfg, evaluator: r.Evaluator()}, nil
}

func (f *ExpressionFilter) Validate() error {
	if err := f.RequireInputs(1, -1); err != nil {
		return err
	}
	if _, err := f.evaluator.CompilePredicate(f.config.Expression); err != nil {
		return f.ConfigError("%v", err)
	}
	return nil
}

func (f *ExpressionFilter) Initialize(context.Context) error {
	program, err := f.evaluator.CompilePredicate(f.config.Expression)
	if err != nil {
		return err
	}
	f.program = program
	return nil
}

func (f *ExpressionFilter) Categories() []string { return []string{CategoryValid, CategoryInvalid} }

func (f *ExpressionFilter) Categorize(_ context.Context, in core.Input) (string, error) {
	out, err := f.evaluator.Run(f.program, expression.RowEnv(in.Columns, in.Values))
	if err != nil {
		return "", err
	}
	if ok, _ := out.(bool); ok {
		return CategoryValid, nil
	}
	return CategoryInvalid, nil
}

type numberRangeConfig struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// NumberRange categorizes a row as VALID when every input is a number in
// [min, max], NULL when an input is null and INVALID otherwise
type NumberRange struct {
	common.Base
	config numberRangeConfig
}

func newNumberRange(r *Registry, def Definition) (core.Component, error) {
	var cfg numberRangeConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &NumberRange{Base: r.base(def), config: cfg}, nil
}

func (f *NumberRange) Validate() error {
	if err := f.RequireInputs(1, -1); err != nil {
		return err
	}
	if f.config.Min == nil && f.config.Max == nil {
		return f.ConfigError("at least one of min and max is required")
	}
	if f.config.Min != nil && f.config.Max != nil && *f.config.Min > *f.config.Max {
		return f.ConfigError("min %v is greater than max %v", *f.config.Min, *f.config.Max)
	}
	return nil
}

func (f *NumberRange) Categories() []string {
	return []string{CategoryValid, CategoryInvalid, CategoryNull}
}

func (f *NumberRange) Categorize(_ context.Context, in core.Input) (string, error) {
	category := CategoryValid
	for _, v := range in.Values {
		if v == nil {
			return CategoryNull, nil
		}
		n, err := common.ToFloat64(v)
		if err != nil || !f.inRange(n) {
			category = CategoryInvalid
		}
	}
	return category, nil
}

func (f *NumberRange) inRange(n float64) bool {
	if f.config.Min != nil && n < *f.config.Min {
		return false
	}
	if f.config.Max != nil && n > *f.config.Max {
		return false
	}
	return true
}
