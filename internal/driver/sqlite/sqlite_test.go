package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) driver.Connector {
	t.Helper()
	connector, err := New().Open(context.Background(), driver.Settings{
		URL:         "test.db",
		AssetPath:   t.TempDir(),
		MinPoolSize: 1,
		MaxPoolSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = connector.Close() })
	return connector
}

func TestResolve(t *testing.T) {
	assert.Equal(t, ":memory:", resolve(":memory:", "/data"))
	assert.Equal(t, "file:x.db?mode=ro", resolve("file:x.db?mode=ro", "/data"))
	assert.Equal(t, "/abs/x.db", resolve("/abs/x.db", "/data"))
	assert.Equal(t, filepath.Join("/data", "x.db"), resolve("x.db", "/data"))
	assert.Equal(t, "x.db", resolve("x.db", ""))
}

func TestStatementRoundTrip(t *testing.T) {
	ctx := context.Background()
	connector := open(t)
	assert.Equal(t, driver.DialectQuestion, New().Dialect())

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Ping(ctx))

	stmt, err := conn.CreateStatement(ctx)
	require.NoError(t, err)
	_, err = stmt.ExecuteUpdate(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, score REAL, avatar BLOB, joined TIMESTAMP)")
	require.NoError(t, err)
	require.NoError(t, stmt.Close())

	insert, err := conn.PrepareStatement(ctx, "INSERT INTO users (id, name, score, avatar, joined) VALUES (?, ?, ?, ?, ?)")
	require.NoError(t, err)
	require.NoError(t, insert.SetLong(1, 7))
	require.NoError(t, insert.SetString(2, "ada"))
	require.NoError(t, insert.SetDouble(3, 9.5))
	require.NoError(t, insert.SetBytes(4, []byte{0x1, 0x2}))
	require.NoError(t, insert.SetTimestamp(5, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	n, err := insert.ExecuteUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, insert.Close())

	query, err := conn.PrepareStatement(ctx, "SELECT id, name, score, avatar FROM users WHERE id = ?")
	require.NoError(t, err)
	defer query.Close()
	require.NoError(t, query.SetInt(1, 7))

	rs, err := query.ExecuteQuery(ctx)
	require.NoError(t, err)
	rows, err := rs.Rows()
	require.NoError(t, err)
	require.NoError(t, rs.Close())

	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0]["id"])
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, 9.5, rows[0]["score"])
	assert.Equal(t, []byte{0x1, 0x2}, rows[0]["avatar"])
}

func TestEmptyResultIsNotNil(t *testing.T) {
	ctx := context.Background()
	conn, err := open(t).Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	stmt, err := conn.CreateStatement(ctx)
	require.NoError(t, err)
	defer stmt.Close()

	rs, err := stmt.ExecuteQuery(ctx, "SELECT 1 AS one WHERE 1 = 0")
	require.NoError(t, err)
	defer rs.Close()

	rows, err := rs.Rows()
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSyntaxErrorIsQueryExecution(t *testing.T) {
	ctx := context.Background()
	conn, err := open(t).Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	stmt, err := conn.CreateStatement(ctx)
	require.NoError(t, err)
	defer stmt.Close()

	_, err = stmt.ExecuteQuery(ctx, "SELEC nonsense")
	require.Error(t, err)
	assert.True(t, errs.IsQueryExecution(err), "got %v", err)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	conn, err := open(t).Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}
