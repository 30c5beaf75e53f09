package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Open opens the store, negotiating the version and provisioning every
// partition in opts.Partitions.
//
// A request below the current version, or an upgrade that cannot take the
// write lock, is retried without an explicit version. Missing partitions
// trigger a reopen at max(current, requested)+1, whose upgrade step creates
// them. All of this shares one attempt budget; running out yields
// types.ErrProvisioningFailure.
func Open(ctx context.Context, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	for _, name := range opts.Partitions {
		if err := ValidatePartition(name); err != nil {
			return nil, err
		}
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			opts.Metrics.RecordStoreOpen("error")
			return nil, fmt.Errorf("%w: create directory: %w", types.ErrStoreUnavailable, err)
		}
	}

	log := opts.Logger.With(zap.String("path", opts.Path()))
	requested := opts.Version
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		conn, err := dial(ctx, opts, requested)
		switch {
		case errors.Is(err, errVersionTooLow), errors.Is(err, errBlocked):
			log.Debug("retrying open without version",
				zap.Int("attempt", attempt),
				zap.Int("requested", requested),
				zap.Error(err))
			lastErr = err
			requested = 0
			continue
		case err != nil:
			opts.Metrics.RecordStoreOpen("error")
			return nil, fmt.Errorf("%w: open %s: %w", types.ErrStoreUnavailable, opts.Path(), err)
		}

		missing := conn.Missing(opts.Partitions)
		if len(missing) == 0 {
			opts.Metrics.RecordStoreOpen("ok")
			return conn, nil
		}

		next := max(conn.Version(), requested) + 1
		log.Debug("provisioning partitions",
			zap.Int("attempt", attempt),
			zap.Strings("missing", missing),
			zap.Int("version", next))
		_ = conn.Close()
		lastErr = fmt.Errorf("%w: %s", errMissingPartition, strings.Join(missing, ", "))
		requested = next
	}

	opts.Metrics.RecordStoreOpen("provisioning_failure")
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", types.ErrProvisioningFailure, opts.Path(), opts.MaxAttempts, lastErr)
}

func dsn(opts Options) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		opts.Path(), opts.BusyTimeout.Milliseconds())
}

func dial(ctx context.Context, opts Options, version int) (*Conn, error) {
	db, err := sql.Open("sqlite", dsn(opts))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	current, err := userVersion(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if version != 0 && version < current {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %d < %d", errVersionTooLow, version, current)
	}

	c := &Conn{
		id:      uuid.NewString(),
		path:    opts.Path(),
		db:      db,
		hub:     opts.Hub,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if version > current {
		notified := opts.Hub.broadcastVersionChange(c.path, c.id, version)
		if err := upgrade(ctx, db, version, opts.Partitions); err != nil {
			_ = db.Close()
			return nil, err
		}
		opts.Metrics.IncStoreUpgrades()
		opts.Logger.Info("store upgraded",
			zap.String("path", c.path),
			zap.Int("from", current),
			zap.Int("to", version),
			zap.Int("siblings_closed", notified))
		current = version
	}

	parts, err := listPartitions(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.version = current
	c.partitions = parts
	opts.Hub.register(c)
	return c, nil
}

// upgrade raises user_version to version and creates the partitions, all
// under the write lock.
func upgrade(ctx context.Context, db *sql.DB, version int, partitions []string) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		if isBlocked(err) {
			return fmt.Errorf("%w: %w", errBlocked, err)
		}
		return err
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	// Another process may have upgraded between the read and the lock.
	current, err := userVersion(ctx, conn)
	if err != nil {
		return err
	}
	if current > version {
		return fmt.Errorf("%w: %d < %d", errVersionTooLow, version, current)
	}

	for _, name := range partitions {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`, tableName(name))
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create partition %s: %w", name, err)
		}
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if isBlocked(err) {
			return fmt.Errorf("%w: %w", errBlocked, err)
		}
		return err
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func userVersion(ctx context.Context, q queryer) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func listPartitions(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'p\_%' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	parts := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		parts[strings.TrimPrefix(name, "p_")] = struct{}{}
	}
	return parts, rows.Err()
}
