package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"flowboard/internal/config"
	"flowboard/internal/db"
	"flowboard/internal/engine"
	"flowboard/internal/migrate"
)

// Runtime bundles the open database, config, and engine for one
// workspace. CLI commands build one per invocation.
type Runtime struct {
	Conn   *sql.DB
	Config *config.Config
	Log    zerolog.Logger
	Engine engine.Engine
}

// Open prepares the workspace: ensures the data directory, opens the
// database, runs migrations, and wires the engine.
func Open(workspace string) (*Runtime, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log := Logger(cfg.Log.Level)
	return &Runtime{
		Conn:   conn,
		Config: cfg,
		Log:    log,
		Engine: engine.New(conn, cfg, log),
	}, nil
}

func (r *Runtime) Close() error {
	return r.Conn.Close()
}

// Logger builds the process logger at the configured level.
func Logger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

// ResolveProject picks the project a CLI command should target. An
// explicit override wins; otherwise the actor's single project is
// used, and anything else asks the user to disambiguate.
func ResolveProject(ctx context.Context, e engine.Engine, override, actorID string) (string, error) {
	if override != "" {
		return override, nil
	}
	projects, err := e.ListProjects(ctx, actorID)
	if err != nil {
		return "", err
	}
	switch len(projects) {
	case 0:
		return "", fmt.Errorf("no projects for %s; create one with 'fb project create'", actorID)
	case 1:
		return projects[0].ID, nil
	default:
		return "", fmt.Errorf("multiple projects; use --project to pick one")
	}
}
