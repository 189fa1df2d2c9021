package components

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"analysis-engine/internal/circuitbreaker"
	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

const TypeLookup = "lookup"

// Lookup join semantics
const (
	// SemanticsMaxOne returns the first match or nulls, like a left join
	// that never multiplies rows
	SemanticsMaxOne = "max_one"
	// SemanticsAll returns one derived row per match and none without one
	SemanticsAll = "all"
	// SemanticsCartesian ignores the inputs and returns every lookup row
	SemanticsCartesian = "cartesian"
)

type lookupConfig struct {
	Database         string   `json:"database" validate:"required"`
	Table            string   `json:"table" validate:"required,sql_identifier"`
	ConditionColumns []string `json:"condition_columns" validate:"omitempty,dive,sql_identifier"`
	OutputColumns    []string `json:"output_columns" validate:"required,min=1,dive,sql_identifier"`
	Outputs          []string `json:"outputs" validate:"omitempty,dive,identifier"`
	Semantics        string   `json:"semantics" validate:"omitempty,oneof=max_one all cartesian"`
	CacheTTL         string   `json:"cache_ttl" validate:"omitempty,duration"`
}

// Lookup enriches rows with columns of a table in another database,
// matching condition_columns against the inputs in order. max_one results
// are kept in the environment's cache; multi-row results never are.
type Lookup struct {
	common.Base
	config  lookupConfig
	outputs []string
	ttl     time.Duration

	env      *core.Environment
	breakers *circuitbreaker.Manager

	db       *core.Database
	querySQL string
	stmt     *sql.Stmt
	breaker  *circuitbreaker.Breaker
}

func newLookup(r *Registry, def Definition) (core.Component, error) {
	cfg := lookupConfig{Semantics: SemanticsMaxOne}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	if cfg.Semantics == "" {
		cfg.Semantics = SemanticsMaxOne
	}

	b := r.base(def)
	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = make([]string, len(cfg.OutputColumns))
		for i, c := range cfg.OutputColumns {
			outputs[i] = def.ID + "_" + c
		}
	}

	return &Lookup{
		Base:     b,
		config:   cfg,
		outputs:  outputs,
		ttl:      parseDuration(cfg.CacheTTL, 5*time.Minute),
		env:      r.Environment(),
		breakers: r.Breakers(),
	}, nil
}

func (t *Lookup) Validate() error {
	if t.config.Semantics == SemanticsCartesian {
		if len(t.config.ConditionColumns) > 0 {
			return t.ConfigError("cartesian lookups take no condition columns")
		}
	} else {
		if len(t.config.ConditionColumns) == 0 {
			return t.ConfigError("condition_columns are required for %s lookups", t.config.Semantics)
		}
		if len(t.config.ConditionColumns) != len(t.Inputs()) {
			return t.ConfigError("%d condition columns for %d inputs", len(t.config.ConditionColumns), len(t.Inputs()))
		}
	}
	if len(t.outputs) != len(t.config.OutputColumns) {
		return t.ConfigError("%d outputs for %d output columns", len(t.outputs), len(t.config.OutputColumns))
	}
	if _, err := t.env.Database(t.config.Database); err != nil {
		return t.ConfigError("%v", err)
	}
	return nil
}

func (t *Lookup) Initialize(ctx context.Context) error {
	db, err := t.env.Database(t.config.Database)
	if err != nil {
		return err
	}
	query := t.query(db.Dialect)
	stmt, err := db.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing lookup query: %w", err)
	}
	t.db = db
	t.querySQL = query
	t.stmt = stmt
	t.breaker = t.breakers.Get("lookup:" + db.Name)
	return nil
}

func (t *Lookup) Close() error {
	if t.stmt == nil {
		return nil
	}
	return t.stmt.Close()
}

func (t *Lookup) query(d core.Dialect) string {
	cols := make([]string, len(t.config.OutputColumns))
	for i, c := range t.config.OutputColumns {
		cols[i] = d.QuoteIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), d.QuoteIdent(t.config.Table))
	for i, c := range t.config.ConditionColumns {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = %s", d.QuoteIdent(c), d.Placeholder(i+1))
	}
	if t.config.Semantics == SemanticsMaxOne {
		sb.WriteString(" LIMIT 1")
	}
	return sb.String()
}

func (t *Lookup) OutputColumns() []string { return t.outputs }
func (t *Lookup) FanOut() bool            { return t.config.Semantics != SemanticsMaxOne }

func (t *Lookup) Transform(ctx context.Context, in core.Input, emit core.Emitter) error {
	if t.config.Semantics != SemanticsMaxOne {
		rows, err := t.fetch(ctx, in.Values)
		if err != nil {
			return err
		}
		for _, row := range rows {
			emit(row...)
		}
		return nil
	}

	// null never equals anything in SQL
	for _, v := range in.Values {
		if v == nil {
			emit(make([]interface{}, len(t.outputs))...)
			return nil
		}
	}

	key := t.cacheKey(in.Values)
	if t.env.Cache != nil {
		if cached, ok := t.env.Cache.Get(ctx, key); ok {
			if values, err := decodeCachedRow(cached); err == nil && len(values) == len(t.outputs) {
				emit(values...)
				return nil
			}
		}
	}

	rows, err := t.fetch(ctx, in.Values)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(t.outputs))
	if len(rows) > 0 {
		values = rows[0]
	}
	if t.env.Cache != nil {
		if encoded, err := encodeCachedRow(values); err == nil {
			t.env.Cache.Set(ctx, key, encoded, t.ttl)
		}
	}
	emit(values...)
	return nil
}

func (t *Lookup) fetch(ctx context.Context, args []interface{}) ([][]interface{}, error) {
	if t.config.Semantics == SemanticsCartesian {
		args = nil
	}
	out, err := t.breaker.Execute(func() (interface{}, error) {
		rows, err := t.stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var result [][]interface{}
		for rows.Next() {
			values := make([]interface{}, len(t.outputs))
			ptrs := make([]interface{}, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, err
			}
			for i, v := range values {
				values[i] = common.NormalizeValue(v)
			}
			result = append(result, values)
		}
		return result, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("lookup in %s.%s failed: %w", t.config.Database, t.config.Table, err)
	}
	rows, _ := out.([][]interface{})
	return rows, nil
}

// cacheKey hashes the database, the query and the condition values, so
// nodes running the same lookup share entries
func (t *Lookup) cacheKey(values []interface{}) string {
	h := xxh3.HashString128(t.db.Name + "\x00" + t.querySQL + "\x00" + common.TupleKey(values))
	return "lookup:" + strconv.FormatUint(h.Hi, 16) + strconv.FormatUint(h.Lo, 16)
}

// cachedCell keeps the Go type of a looked up value, so a row read back
// from redis matches one fresh from the database
type cachedCell struct {
	Kind  string `json:"k"`
	Value string `json:"v,omitempty"`
}

// encodeCachedRow turns a looked up row into the JSON text stored in the
// cache. Both cache tiers hold the same string.
func encodeCachedRow(values []interface{}) (string, error) {
	cells := make([]cachedCell, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			cells[i] = cachedCell{Kind: "null"}
		case int64:
			cells[i] = cachedCell{Kind: "int", Value: strconv.FormatInt(x, 10)}
		case float64:
			cells[i] = cachedCell{Kind: "float", Value: strconv.FormatFloat(x, 'g', -1, 64)}
		case bool:
			cells[i] = cachedCell{Kind: "bool", Value: strconv.FormatBool(x)}
		case time.Time:
			cells[i] = cachedCell{Kind: "time", Value: x.Format(time.RFC3339Nano)}
		case string:
			cells[i] = cachedCell{Kind: "string", Value: x}
		default:
			return "", fmt.Errorf("cannot cache value of type %T", v)
		}
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCachedRow(cached interface{}) ([]interface{}, error) {
	text, ok := cached.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value of type %T", cached)
	}
	var cells []cachedCell
	if err := json.Unmarshal([]byte(text), &cells); err != nil {
		return nil, err
	}

	values := make([]interface{}, len(cells))
	for i, c := range cells {
		var err error
		switch c.Kind {
		case "null":
		case "int":
			values[i], err = strconv.ParseInt(c.Value, 10, 64)
		case "float":
			values[i], err = strconv.ParseFloat(c.Value, 64)
		case "bool":
			values[i], err = strconv.ParseBool(c.Value)
		case "time":
			values[i], err = time.Parse(time.RFC3339Nano, c.Value)
		case "string":
			values[i] = c.Value
		default:
			err = fmt.Errorf("unknown cached kind %q", c.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}
