package components

import (
	"context"
	"strings"
	"unicode"

	strip "github.com/grokify/html-strip-tags-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

const (
	TypeCase        = "case"
	TypeConcatenate = "concatenate"
	TypeTokenizer   = "tokenizer"
	TypeNormalize   = "normalize"
	TypeHTMLStrip   = "html_strip"
)

// perInput is the shape shared by transformers that map each input to one
// output of the same position
type perInput struct {
	common.Base
	outputs []string
	apply   func(string) string
}

func (t *perInput) Validate() error {
	if err := t.RequireInputs(1, -1); err != nil {
		return err
	}
	if len(t.outputs) != len(t.Inputs()) {
		return t.ConfigError("needs one output per input: %d outputs for %d inputs", len(t.outputs), len(t.Inputs()))
	}
	return nil
}

func (t *perInput) OutputColumns() []string { return t.outputs }
func (t *perInput) FanOut() bool            { return false }

// Transform keeps nulls as nulls
func (t *perInput) Transform(_ context.Context, in core.Input, emit core.Emitter) error {
	out := make([]interface{}, len(in.Values))
	for i, v := range in.Values {
		if v == nil {
			continue
		}
		out[i] = t.apply(common.ToString(v))
	}
	emit(out...)
	return nil
}

type caseConfig struct {
	Mode     string   `json:"mode" validate:"required,oneof=upper lower title"`
	Language string   `json:"language" validate:"omitempty,bcp47_language_tag"`
	Outputs  []string `json:"outputs" validate:"omitempty,dive,identifier"`
}

// CaseTransformer changes the letter case of each input
type CaseTransformer struct {
	perInput
}

func newCaseTransformer(r *Registry, def Definition) (core.Component, error) {
	var cfg caseConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}

	tag := language.Und
	if cfg.Language != "" {
		tag = language.Make(cfg.Language)
	}
	// A Caser keeps state, so each call gets its own
	newCaser := map[string]func() cases.Caser{
		"upper": func() cases.Caser { return cases.Upper(tag) },
		"lower": func() cases.Caser { return cases.Lower(tag) },
		"title": func() cases.Caser { return cases.Title(tag) },
	}[cfg.Mode]

	b := r.base(def)
	return &CaseTransformer{perInput{
		Base:    b,
		outputs: b.OutputNames(cfg.Outputs, len(def.Inputs)),
		apply:   func(s string) string { return newCaser().String(s) },
	}}, nil
}

type htmlStripConfig struct {
	Outputs []string `json:"outputs" validate:"omitempty,dive,identifier"`
	// KeepWhitespace leaves the whitespace of the markup alone instead of
	// collapsing it
	KeepWhitespace bool `json:"keep_whitespace"`
}

// HTMLStrip removes markup from each input
type HTMLStrip struct {
	perInput
}

func newHTMLStrip(r *Registry, def Definition) (core.Component, error) {
	var cfg htmlStripConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}

	apply := strip.StripTags
	if !cfg.KeepWhitespace {
		apply = func(s string) string { return strings.Join(strings.Fields(strip.StripTags(s)), " ") }
	}

	b := r.base(def)
	return &HTMLStrip{perInput{
		Base:    b,
		outputs: b.OutputNames(cfg.Outputs, len(def.Inputs)),
		apply:   apply,
	}}, nil
}

type normalizeConfig struct {
	Trim               *bool    `json:"trim"`
	RemoveDiacritics   bool     `json:"remove_diacritics"`
	CollapseWhitespace bool     `json:"collapse_whitespace"`
	Outputs            []string `json:"outputs" validate:"omitempty,dive,identifier"`
}

// Normalize cleans up text: trimming, diacritics removal and whitespace
// collapsing
type Normalize struct {
	perInput
}

func newNormalize(r *Registry, def Definition) (core.Component, error) {
	var cfg normalizeConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	trim := cfg.Trim == nil || *cfg.Trim

	apply := func(s string) string {
		if cfg.RemoveDiacritics {
			t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
			if out, _, err := transform.String(t, s); err == nil {
				s = out
			}
		} else {
			s = norm.NFC.String(s)
		}
		if cfg.CollapseWhitespace {
			s = strings.Join(strings.Fields(s), " ")
		} else if trim {
			s = strings.TrimSpace(s)
		}
		return s
	}

	b := r.base(def)
	return &Normalize{perInput{
		Base:    b,
		outputs: b.OutputNames(cfg.Outputs, len(def.Inputs)),
		apply:   apply,
	}}, nil
}

type concatenateConfig struct {
	Separator string `json:"separator"`
	SkipNulls *bool  `json:"skip_nulls"`
	Output    string `json:"output" validate:"omitempty,identifier"`
}

// Concatenate joins its inputs into one output
type Concatenate struct {
	common.Base
	config concatenateConfig
	output string
}

func newConcatenate(r *Registry, def Definition) (core.Component, error) {
	var cfg concatenateConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	b := r.base(def)
	output := cfg.Output
	if output == "" {
		output = def.ID
	}
	return &Concatenate{Base: b, config: cfg, output: output}, nil
}

func (t *Concatenate) Validate() error { return t.RequireInputs(1, -1) }

func (t *Concatenate) OutputColumns() []string { return []string{t.output} }
func (t *Concatenate) FanOut() bool            { return false }

// Transform emits null when every input is null
func (t *Concatenate) Transform(_ context.Context, in core.Input, emit core.Emitter) error {
	skip := t.config.SkipNulls == nil || *t.config.SkipNulls

	parts := make([]string, 0, len(in.Values))
	allNull := true
	for _, v := range in.Values {
		if v == nil {
			if skip {
				continue
			}
		} else {
			allNull = false
		}
		parts = append(parts, common.ToString(v))
	}
	if allNull {
		emit(nil)
		return nil
	}
	emit(strings.Join(parts, t.config.Separator))
	return nil
}

type tokenizerConfig struct {
	Delimiters string   `json:"delimiters"`
	Mode       string   `json:"mode" validate:"omitempty,oneof=columns rows"`
	NumTokens  int      `json:"num_tokens" validate:"omitempty,min=1,max=1000"`
	Outputs    []string `json:"outputs" validate:"omitempty,dive,identifier"`
}

// Tokenizer splits its input on a set of delimiter characters. In columns
// mode it emits one row with num_tokens outputs, padding with nulls and
// dropping surplus tokens. In rows mode it emits one derived row per token.
type Tokenizer struct {
	common.Base
	config  tokenizerConfig
	outputs []string
}

func newTokenizer(r *Registry, def Definition) (core.Component, error) {
	cfg := tokenizerConfig{Delimiters: " \t\n\r", Mode: "columns", NumTokens: 2}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	if cfg.Delimiters == "" {
		cfg.Delimiters = " \t\n\r"
	}

	b := r.base(def)
	n := cfg.NumTokens
	if cfg.Mode == "rows" {
		n = 1
	} else if len(cfg.Outputs) > 0 {
		n = len(cfg.Outputs)
	}
	return &Tokenizer{Base: b, config: cfg, outputs: b.OutputNames(cfg.Outputs, n)}, nil
}

func (t *Tokenizer) Validate() error {
	if err := t.RequireInputs(1, 1); err != nil {
		return err
	}
	if t.FanOut() && len(t.outputs) != 1 {
		return t.ConfigError("rows mode has exactly one output, got %d", len(t.outputs))
	}
	return nil
}

func (t *Tokenizer) OutputColumns() []string { return t.outputs }
func (t *Tokenizer) FanOut() bool            { return t.config.Mode == "rows" }

func (t *Tokenizer) Transform(_ context.Context, in core.Input, emit core.Emitter) error {
	var tokens []string
	if v := in.Value(0); v != nil {
		tokens = strings.FieldsFunc(common.ToString(v), func(r rune) bool {
			return strings.ContainsRune(t.config.Delimiters, r)
		})
	}

	if t.FanOut() {
		for _, tok := range tokens {
			emit(tok)
		}
		return nil
	}

	out := make([]interface{}, len(t.outputs))
	for i := range out {
		if i < len(tokens) {
			out[i] = tokens[i]
		}
	}
	emit(out...)
	return nil
}
