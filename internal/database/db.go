package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// BunDB wraps bun.DB and provides repository access.
type BunDB struct {
	db *bun.DB

	Agents      AgentRepository
	Jobs        JobRepository
	Outputs     OutputRepository
	Users       UserRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	Settings    SettingRepository
}

// Option is a functional option for configuring the database.
type Option func(*BunDB)

// WithDebug enables query logging for debugging.
func WithDebug(enabled bool) Option {
	return func(db *BunDB) {
		if enabled {
			db.db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
			))
			log.Info().Msg("Bun query logging enabled")
		}
	}
}

// New opens the SQLite store, applies migrations and wires repositories.
func New(dsn string, opts ...Option) (*BunDB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	bunDB := &BunDB{db: db}
	for _, opt := range opts {
		opt(bunDB)
	}

	bunDB.Agents = NewAgentRepository(db)
	bunDB.Jobs = NewJobRepository(db)
	bunDB.Outputs = NewOutputRepository(db)
	bunDB.Users = NewUserRepository(db)
	bunDB.Roles = NewRoleRepository(db)
	bunDB.Permissions = NewPermissionRepository(db)
	bunDB.Settings = NewSettingRepository(db)

	if err := bunDB.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("Database initialized")
	return bunDB, nil
}

// Close closes the database connection.
func (db *BunDB) Close() error {
	return db.db.Close()
}

// DB returns the underlying bun.DB instance for advanced operations.
func (db *BunDB) DB() *bun.DB {
	return db.db
}

// Migrate creates tables and indexes if they do not exist.
func (db *BunDB) Migrate(ctx context.Context) error {
	models := []interface{}{
		(*Agent)(nil),
		(*Job)(nil),
		(*Output)(nil),
		(*User)(nil),
		(*Role)(nil),
		(*Permission)(nil),
		(*Setting)(nil),
	}

	for _, model := range models {
		if _, err := db.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_agents_token_hash ON agents(token_hash)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_agent_id ON jobs(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_master_job ON jobs(master_job)",
		"CREATE INDEX IF NOT EXISTS idx_outputs_job_id ON outputs(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_outputs_agent_id ON outputs(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_users_email ON users(email_address)",
		"CREATE INDEX IF NOT EXISTS idx_settings_name ON settings(name)",
	}

	for _, idx := range indexes {
		if _, err := db.db.ExecContext(ctx, idx); err != nil {
			log.Warn().Err(err).Str("index", idx).Msg("Failed to create index")
		}
	}

	return nil
}

// RunInTx executes fn inside a single transaction. Multi-write sequences
// (credential initialization, promotion) go through here so a concurrent
// reader observes either the pre- or the post-state, never a partial one.
func (db *BunDB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return db.db.RunInTx(ctx, nil, fn)
}
