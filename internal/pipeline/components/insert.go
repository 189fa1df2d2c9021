package components

import (
	"context"
	"fmt"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/storage"
)

const TypeInsertIntoTable = "insert_into_table"

// Column types insert_into_table converts values to
const (
	ColumnString  = "string"
	ColumnInteger = "integer"
	ColumnFloat   = "float"
	ColumnBoolean = "boolean"
)

type insertColumn struct {
	Name string `json:"name" validate:"required,sql_identifier"`
	Type string `json:"type" validate:"omitempty,oneof=string integer float boolean"`
}

type insertConfig struct {
	Database string         `json:"database" validate:"required"`
	Table    string         `json:"table" validate:"required,sql_identifier"`
	Columns  []insertColumn `json:"columns" validate:"required,min=1,dive"`
}

// InsertResult reports what an insert_into_table node wrote
type InsertResult struct {
	Table       string `json:"table"`
	RowsWritten int64  `json:"rows_written"`
}

// InsertIntoTable writes its inputs as rows of a table. Rows whose values
// cannot be converted or written are captured instead of failing the job.
type InsertIntoTable struct {
	common.Base
	config insertConfig
	env    *core.Environment
	writer *storage.TableWriter
}

func newInsertIntoTable(r *Registry, def Definition) (core.Component, error) {
	var cfg insertConfig
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &InsertIntoTable{Base: r.base(def), config: cfg, env: r.Environment()}, nil
}

func (t *InsertIntoTable) ErrorPolicy() core.ErrorPolicy { return core.PolicyCapture }

func (t *InsertIntoTable) Validate() error {
	if err := t.RequireInputs(1, -1); err != nil {
		return err
	}
	if len(t.config.Columns) != len(t.Inputs()) {
		return t.ConfigError("%d columns for %d inputs", len(t.config.Columns), len(t.Inputs()))
	}
	if _, err := t.env.Database(t.config.Database); err != nil {
		return t.ConfigError("%v", err)
	}
	return nil
}

func (t *InsertIntoTable) Initialize(ctx context.Context) error {
	db, err := t.env.Database(t.config.Database)
	if err != nil {
		return err
	}
	names := make([]string, len(t.config.Columns))
	for i, c := range t.config.Columns {
		names[i] = c.Name
	}
	w, err := storage.NewTableWriter(ctx, db, t.config.Table, names)
	if err != nil {
		return err
	}
	t.writer = w
	return nil
}

func (t *InsertIntoTable) Close() error {
	if t.writer == nil {
		return nil
	}
	return t.writer.Close()
}

func (t *InsertIntoTable) Run(ctx context.Context, in core.Input, count int) error {
	values := make([]interface{}, len(t.config.Columns))
	for i, col := range t.config.Columns {
		v, err := convertColumn(col.Type, in.Value(i))
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		values[i] = v
	}
	for i := 0; i < count; i++ {
		if err := t.writer.Write(ctx, values); err != nil {
			return err
		}
	}
	return nil
}

func (t *InsertIntoTable) Result() (core.Result, error) {
	var written int64
	if t.writer != nil {
		written = t.writer.Written()
	}
	return &InsertResult{Table: t.config.Table, RowsWritten: written}, nil
}

func convertColumn(typ string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case ColumnInteger:
		return common.ToInt64(v)
	case ColumnFloat:
		return common.ToFloat64(v)
	case ColumnBoolean:
		return common.ToBool(v)
	default:
		return common.ToString(v), nil
	}
}
