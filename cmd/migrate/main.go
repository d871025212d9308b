package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/retailops/internal/storage/postgres"
	"github.com/vladislavdragonenkov/retailops/internal/version"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnv         = "RETAILOPS_POSTGRES_DSN"
)

type direction string

const (
	directionUp     direction = "up"
	directionDown   direction = "down"
	directionStatus direction = "status"
)

var errDSNRequired = errors.New(dsnEnv + " (or -dsn) is required")

type options struct {
	direction direction
	steps     int
	dsn       string
}

func parseDirection(raw string) (direction, error) {
	switch d := direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case directionUp, directionDown, directionStatus:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported direction: %s (use up|down|status)", raw)
	}
}

// resolveDSN: флаг важнее переменной окружения.
func resolveDSN(flagValue string, getenv func(string) string) (string, error) {
	if dsn := strings.TrimSpace(flagValue); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(getenv(dsnEnv)); dsn != "" {
		return dsn, nil
	}
	return "", errDSNRequired
}

func main() {
	var (
		rawDirection string
		steps        int
		dsn          string
		showVersion  bool
	)

	flag.StringVar(&rawDirection, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	flag.BoolVar(&showVersion, "version", false, "print build info and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	// .env необязателен
	_ = godotenv.Load()

	dir, err := parseDirection(rawDirection)
	if err != nil {
		fail("%v", err)
	}
	resolved, err := resolveDSN(dsn, os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, options{direction: dir, steps: steps, dsn: resolved}, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	prefix := "migration status"
	switch opts.direction {
	case directionUp:
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		prefix = "migrate up ok"
	case directionDown:
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		prefix = "migrate down ok"
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	writeStatus(out, prefix, state)
	return nil
}

func writeStatus(out io.Writer, prefix string, state postgres.MigrationState) {
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, len(state.Pending))
	for _, name := range state.Pending {
		_, _ = fmt.Fprintf(out, "  pending %s\n", name)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
