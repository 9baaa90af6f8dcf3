package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func migratedTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db, "").ApplyMigrations())
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	require.Equal(t, "./data/chatrelay.db", config.DatabasePath)
	require.Equal(t, 10, config.MaxConnections)
	require.Equal(t, time.Hour, config.ConnMaxLifetime)
	require.Equal(t, 10*time.Minute, config.ConnMaxIdleTime)
	require.Empty(t, config.MigrationsPath)
	require.NoError(t, config.Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			require.Error(t, config.Validate())
		})
	}
}

func TestMigrationManager_ApplyEmbeddedMigrations(t *testing.T) {
	db := migratedTestDB(t)

	manager := NewMigrationManager(db, "")
	require.NoError(t, manager.ValidateSchema())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	require.Equal(t, 1, count)
}

func TestMigrationManager_ApplyIsIdempotent(t *testing.T) {
	db := migratedTestDB(t)

	require.NoError(t, NewMigrationManager(db, "").ApplyMigrations())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	require.Equal(t, 1, count)
}

func TestMigrationManager_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_extra.sql"),
		[]byte("CREATE TABLE extra (id INTEGER PRIMARY KEY);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_base.sql"),
		[]byte("CREATE TABLE base (id INTEGER PRIMARY KEY);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	db := openTestDB(t)
	manager := NewMigrationManager(db, dir)

	migrations, err := manager.loadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "001", migrations[0].Version)
	require.Equal(t, "base", migrations[0].Description)
	require.Equal(t, "002", migrations[1].Version)

	require.NoError(t, manager.ApplyMigrations())
}

func TestSchemaValidator_MigratedSchema(t *testing.T) {
	validator := NewSchemaValidator(migratedTestDB(t))

	require.NoError(t, validator.ValidateTablesExist())
	require.NoError(t, validator.ValidateTableStructure())
	require.NoError(t, validator.ValidateIndexes())
	require.NoError(t, validator.ValidateConstraints())
}

func TestMigrationManager_ValidateSchemaLeavesNoRows(t *testing.T) {
	db := migratedTestDB(t)

	require.NoError(t, NewMigrationManager(db, "").ValidateSchema())

	var users, messages int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&users))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&messages))
	require.Zero(t, users)
	require.Zero(t, messages)
}

func TestMigrationManager_ValidateSchemaRejectsMissingCheck(t *testing.T) {
	// Given a schema identical to the real one except for the delivered CHECK
	dir := t.TempDir()
	schema := `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	from_user TEXT NOT NULL REFERENCES users(username),
	to_user TEXT NOT NULL REFERENCES users(username),
	text TEXT NOT NULL,
	delivered INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_messages_undelivered ON messages(to_user, delivered, seq);
CREATE INDEX idx_messages_from_user ON messages(from_user);
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_loose.sql"), []byte(schema), 0o600))

	db := openTestDB(t)
	manager := NewMigrationManager(db, dir)
	require.NoError(t, manager.ApplyMigrations())

	// When the schema is validated, then the missing constraint is reported
	err := manager.ValidateSchema()
	require.Error(t, err)
	require.Contains(t, err.Error(), "messages.delivered")
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	validator := NewSchemaValidator(openTestDB(t))

	require.Error(t, validator.ValidateTablesExist())
	require.Error(t, validator.ValidateIndexes())
}

func TestSchema_UsernameUnique(t *testing.T) {
	db := migratedTestDB(t)

	_, err := db.Exec("INSERT INTO users (id, username) VALUES ('1', 'alice')")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO users (id, username) VALUES ('2', 'alice')")
	require.Error(t, err)
}

func TestSchema_MessagesReferenceUsers(t *testing.T) {
	db := migratedTestDB(t)

	_, err := db.Exec(`INSERT INTO messages (id, from_user, to_user, text) VALUES ('m1', 'ghost', 'nobody', 'hi')`)
	require.Error(t, err)
}
