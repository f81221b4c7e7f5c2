package migration

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/coord?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "coord", "u", "p", "disable"))
	assert.Equal(t, "postgres://u:p@db:5432/coord?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "coord", "u", "p", ""))
	assert.Equal(t, "u:p@tcp(db:3306)/coord?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "coord", "u", "p", ""))
	assert.Equal(t, "file:/var/lib/coord.db?mode=rwc&_foreign_keys=on",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/coord.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "", "", "", ""))
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestAvailableMigrations_AllDialects(t *testing.T) {
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dt), func(t *testing.T) {
			files, err := AvailableMigrations(dt)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, File{Version: 1, Name: "knowledge_graph"}, files[0])
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].Version, files[i-1].Version)
			}

			up, err := ReadUp(dt, files[0])
			require.NoError(t, err)
			assert.Contains(t, up, "knowledge_concepts")
			assert.Contains(t, up, "knowledge_relationships")
		})
	}

	_, err := AvailableMigrations("oracle")
	assert.Error(t, err)
}

// 内嵌的 sqlite schema 可以在真实 SQLite 上执行，并满足存储层依赖的约束
func TestSQLiteSchema_Executes(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	files, err := AvailableMigrations(DatabaseTypeSQLite)
	require.NoError(t, err)
	for _, f := range files {
		up, err := ReadUp(DatabaseTypeSQLite, f)
		require.NoError(t, err)
		_, err = db.Exec(up)
		require.NoError(t, err, f.Name)
	}

	_, err = db.Exec(`INSERT INTO knowledge_concepts (id, name) VALUES ('a', 'Alpha'), ('b', 'Beta')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO knowledge_relationships (concept_a, concept_b, relation_type, strength) VALUES ('a', 'b', 'related', 0.5)`)
	require.NoError(t, err)

	// (concept_a, concept_b) 是主键
	_, err = db.Exec(`INSERT INTO knowledge_relationships (concept_a, concept_b, relation_type) VALUES ('a', 'b', 'dup')`)
	assert.Error(t, err)

	var keywords string
	require.NoError(t, db.QueryRow(`SELECT keywords FROM knowledge_concepts WHERE id = 'a'`).Scan(&keywords))
	assert.Equal(t, "[]", keywords)
}

// --- CLI ---

type fakeMigrator struct {
	version  uint
	dirty    bool
	statuses []MigrationStatus
	upErr    error
	steps    []int
	forced   int
}

func (f *fakeMigrator) Up(context.Context) error   { f.version = 1; return f.upErr }
func (f *fakeMigrator) Down(context.Context) error { f.version = 0; return nil }
func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	f.steps = append(f.steps, n)
	return nil
}
func (f *fakeMigrator) Force(_ context.Context, v int) error { f.forced = v; return nil }
func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}
func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) { return f.statuses, nil }
func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	return &MigrationInfo{CurrentVersion: f.version, TotalMigrations: len(f.statuses)}, nil
}
func (f *fakeMigrator) Close() error { return nil }

func TestCLI_Output(t *testing.T) {
	ctx := context.Background()
	fm := &fakeMigrator{statuses: []MigrationStatus{
		{Version: 1, Name: "knowledge_graph", Applied: true},
		{Version: 2, Name: "usage_index"},
	}}
	var buf bytes.Buffer
	cli := NewCLI(fm)
	cli.SetOutput(&buf)

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, buf.String(), "Current version: 1")

	buf.Reset()
	fm.dirty = true
	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "Current version: 1 (dirty)")

	buf.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, buf.String(), "000001")
	assert.Contains(t, buf.String(), "Applied")
	assert.Contains(t, buf.String(), "Pending")
	assert.Contains(t, buf.String(), "Total: 2, Applied: 1, Pending: 1")

	require.NoError(t, cli.RunSteps(ctx, -1))
	assert.Equal(t, []int{-1}, fm.steps)
	assert.Error(t, cli.RunSteps(ctx, 0))

	require.NoError(t, cli.RunForce(ctx, 1))
	assert.Equal(t, 1, fm.forced)
}

func TestCLI_PropagatesErrors(t *testing.T) {
	boom := errors.New("lock timeout")
	cli := NewCLI(&fakeMigrator{upErr: boom})
	cli.SetOutput(&bytes.Buffer{})
	assert.ErrorIs(t, cli.RunUp(context.Background()), boom)
}
