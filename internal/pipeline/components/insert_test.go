package components

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/errors"
	"analysis-engine/internal/storage"
)

func insertRegistry(t *testing.T) (*Registry, *core.Database) {
	t.Helper()
	db, err := storage.Open(context.Background(), "target", storage.TypeSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.DB.Close() })

	_, err = db.DB.Exec(`CREATE TABLE people (name TEXT, age INTEGER, score REAL, active BOOLEAN)`)
	require.NoError(t, err)

	r := testRegistry(t)
	r.Environment().Databases["target"] = db
	return r, db
}

const peopleInsert = `{"database": "target", "table": "people", "columns": [
	{"name": "name", "type": "string"},
	{"name": "age", "type": "integer"},
	{"name": "score", "type": "float"},
	{"name": "active", "type": "boolean"}]}`

func TestInsertIntoTable_CapturesInvalidRows(t *testing.T) {
	r, db := insertRegistry(t)
	src := memorySource(t, "src", []string{"name", "age", "score", "active"},
		[]interface{}{"ann", "31", "9.5", "true"},
		[]interface{}{"bob", 40, 7, 1},
		[]interface{}{"cy", "old", "1", "false"},
		[]interface{}{"dee", nil, nil, nil},
		[]interface{}{42, "5", "0.5", "0"},
	)

	exec := execute(t, r, src, stage{
		id:     "insert",
		typ:    TypeInsertIntoTable,
		inputs: []string{"src.name", "src.age", "src.score", "src.active"},
		config: peopleInsert,
	})

	require.True(t, exec.IsSuccessful(), "%v", exec.Errors())
	assert.Equal(t, core.StatusSuccessful, exec.Status())
	assert.Equal(t, int64(1), exec.RejectCount())
	require.Len(t, exec.Rejects(), 1)
	assert.Equal(t, "insert", exec.Rejects()[0].NodeID)
	assert.Equal(t, "memory", exec.Rejects()[0].Location)

	res, ok := exec.Result("insert")
	require.True(t, ok)
	assert.Equal(t, &InsertResult{Table: "people", RowsWritten: 4}, res)

	var n int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&n))
	assert.Equal(t, 4, n)
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM people WHERE name = '42' AND age = 5`).Scan(&n))
	assert.Equal(t, 1, n)

	rejects := r.Environment().Rejects.(*core.MemoryRejectSink).Rows(exec.ID())
	require.Len(t, rejects, 1)
	assert.Equal(t, int64(3), rejects[0].RowID)
	assert.Equal(t, "old", rejects[0].Values["src.age"])
	assert.Equal(t, "cy", rejects[0].Values["src.name"])
	assert.Contains(t, rejects[0].Error, "column age")
}

func TestInsertIntoTable_RepeatsRowsByCount(t *testing.T) {
	r, db := insertRegistry(t)
	cols := []string{"t.name"}
	c := build(t, r, TypeInsertIntoTable, "insert", cols,
		`{"database": "target", "table": "people", "columns": [{"name": "name"}]}`)

	require.NoError(t, c.(core.Analyzer).Run(context.Background(), input(cols, "x"), 3))

	var n int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM people WHERE name = 'x'`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestInsertIntoTable_Validate(t *testing.T) {
	r, _ := insertRegistry(t)

	c, err := r.Create(Definition{ID: "insert", Type: TypeInsertIntoTable, Inputs: []string{"t.a"}, Config: []byte(peopleInsert)})
	require.NoError(t, err)
	assert.True(t, errors.IsConfigurationError(c.Validate()))

	c, err = r.Create(Definition{ID: "insert", Type: TypeInsertIntoTable, Inputs: []string{"t.a"},
		Config: []byte(`{"database": "elsewhere", "table": "people", "columns": [{"name": "name"}]}`)})
	require.NoError(t, err)
	assert.True(t, errors.IsConfigurationError(c.Validate()))

	_, err = r.Create(Definition{ID: "insert", Type: TypeInsertIntoTable, Inputs: []string{"t.a"},
		Config: []byte(`{"database": "target", "table": "people", "columns": [{"name": "name", "type": "blob"}]}`)})
	assert.True(t, errors.IsConfigurationError(err))
}

func TestInsertIntoTable_DeclaresCapture(t *testing.T) {
	r, _ := insertRegistry(t)
	c, err := r.Create(Definition{ID: "insert", Type: TypeInsertIntoTable, Inputs: []string{"t.a"},
		Config: []byte(`{"database": "target", "table": "people", "columns": [{"name": "name"}]}`)})
	require.NoError(t, err)
	assert.Equal(t, core.PolicyCapture, core.PolicyOf(c))
}
