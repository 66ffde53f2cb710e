package main

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	src := `-- comment; with semicolon
CREATE INDEX a ON t (x);
INSERT INTO t VALUES ('a;b');
CREATE FUNCTION f() RETURNS text LANGUAGE sql AS $$ SELECT 'x'; $$;
`
	stmts := splitStatements(src)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE INDEX a ON t (x)", stmts[0])
	assert.Equal(t, "INSERT INTO t VALUES ('a;b')", stmts[1])
	assert.Contains(t, stmts[2], "$$ SELECT 'x'; $$")
}

func TestMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/postgres/001_a.up.sql":   {Data: []byte("x")},
		"sql/postgres/001_a.down.sql": {Data: []byte("x")},
		"sql/postgres/002_b.up.sql":   {Data: []byte("x")},
		"sql/postgres/002_b.down.sql": {Data: []byte("x")},
	}

	up, err := migrationFiles(fsys, "postgres", "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql/postgres/001_a.up.sql", "sql/postgres/002_b.up.sql"}, up)

	down, err := migrationFiles(fsys, "postgres", "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql/postgres/002_b.down.sql", "sql/postgres/001_a.down.sql"}, down)
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql"} {
		up, err := migrationFiles(migrations, dialect, "up")
		require.NoError(t, err)
		down, err := migrationFiles(migrations, dialect, "down")
		require.NoError(t, err)
		assert.NotEmpty(t, up)
		assert.Len(t, down, len(up))
	}
}
