package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
)

func drain(t *testing.T, src core.DataSource, table string, columns []string) [][]interface{} {
	t.Helper()
	it, err := src.Open(context.Background(), table, columns)
	require.NoError(t, err)
	defer it.Close()

	var out [][]interface{}
	for it.Next(context.Background()) {
		out = append(out, append([]interface{}(nil), it.Values()...))
	}
	require.NoError(t, it.Err())
	return out
}

func TestMemory(t *testing.T) {
	m := NewMemory("")
	require.NoError(t, m.AddTable("people", []string{"name", "age"}, [][]interface{}{
		{"ann", 31},
		{nil, 40},
	}))

	assert.Equal(t, TypeMemory, m.Name())

	cols, err := m.Columns(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, cols)

	n, err := m.ExpectedRows(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows := drain(t, m, "people", []string{"age", "missing"})
	assert.Equal(t, [][]interface{}{{31, nil}, {40, nil}}, rows)

	_, err = m.Columns(context.Background(), "nope")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestMemory_AddTableRejectsRaggedRows(t *testing.T) {
	m := NewMemory("m")
	err := m.AddTable("t", []string{"a", "b"}, [][]interface{}{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 values for 2 columns")
}

func TestMemory_AddRecords(t *testing.T) {
	m := NewMemory("m")
	require.NoError(t, m.AddRecords("t", []string{"a", "b"}, []map[string]interface{}{
		{"a": 1, "b": "x"},
		{"a": 2},
	}))
	assert.Equal(t, [][]interface{}{{1, "x"}, {2, nil}}, drain(t, m, "t", []string{"a", "b"}))
}

func TestMemory_StopsOnCancel(t *testing.T) {
	m := NewMemory("m")
	require.NoError(t, m.AddTable("t", []string{"a"}, [][]interface{}{{1}, {2}}))

	ctx, cancel := context.WithCancel(context.Background())
	it, err := m.Open(ctx, "t", []string{"a"})
	require.NoError(t, err)
	assert.True(t, it.Next(ctx))
	cancel()
	assert.False(t, it.Next(ctx))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people.csv", "\uFEFFname, city\nann,Oslo\nbob,\n\"c, d\",Rome\n")
	writeFile(t, dir, "empty.csv", "")
	writeFile(t, dir, "notes.txt", "ignored")

	src, err := NewCSV("files", dir, CSVOptions{EmptyAsNull: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"empty", "people"}, src.Tables())

	cols, err := src.Columns(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "city"}, cols)

	n, err := src.ExpectedRows(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, core.UnknownRowCount, n)

	rows := drain(t, src, "people", []string{"city", "name"})
	assert.Equal(t, [][]interface{}{
		{"Oslo", "ann"},
		{nil, "bob"},
		{"Rome", "c, d"},
	}, rows)

	assert.Empty(t, drain(t, src, "empty", []string{"a"}))
}

func TestCSV_SingleFileAndSeparator(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scores.csv", "id;score\n1; 9\n")

	src, err := NewCSV("", path, CSVOptions{Comma: ';', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"scores"}, src.Tables())
	assert.Equal(t, [][]interface{}{{"1", "9"}}, drain(t, src, "scores", []string{"id", "score"}))
}

func TestCSV_Errors(t *testing.T) {
	_, err := NewCSV("x", "", CSVOptions{})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = NewCSV("x", filepath.Join(t.TempDir(), "missing"), CSVOptions{})
	assert.True(t, errors.IsType(err, errors.ErrTypeDataSource))

	src, err := NewCSV("x", t.TempDir(), CSVOptions{})
	require.NoError(t, err)
	_, err = src.Open(context.Background(), "nope", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestSQL(t *testing.T) {
	ctx := context.Background()
	src, err := Open(ctx, "db", TypeSQLite, ":memory:")
	require.NoError(t, err)
	defer src.Close()

	db := src.(*SQL).Database().DB
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER, note TEXT, total REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (1, 'first', 9.5), (2, NULL, 1)`)
	require.NoError(t, err)

	assert.Equal(t, "db", src.Name())

	cols, err := src.Columns(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "note", "total"}, cols)

	n, err := src.ExpectedRows(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows := drain(t, src, "orders", []string{"note", "id"})
	assert.Equal(t, [][]interface{}{{"first", int64(1)}, {nil, int64(2)}}, rows)

	_, err = src.Open(ctx, "missing", []string{"a"})
	assert.True(t, errors.IsType(err, errors.ErrTypeDataSource))
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open(context.Background(), "x", "parquet", "")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
