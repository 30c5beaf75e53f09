package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// ErrReadOnly is returned by writes inside a ReadOnly transaction
var ErrReadOnly = errors.New("store: partition opened read-only")

// Keyed is a value that knows its own partition key
type Keyed interface {
	StoreKey() string
}

// Partition exposes one table inside a transaction. It is only valid
// within the WithPartition callback that produced it.
type Partition struct {
	tx    *sql.Tx
	name  string
	table string
	mode  Mode
	codec *Codec
}

// Name returns the partition name
func (p *Partition) Name() string { return p.name }

// Put inserts or replaces v under v.StoreKey()
func (p *Partition) Put(ctx context.Context, v Keyed) error {
	if err := p.writable(); err != nil {
		return err
	}
	key := v.StoreKey()
	if key == "" {
		return fmt.Errorf("store: put into %s: empty key", p.name)
	}
	data, err := p.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", p.name, key, err)
	}

	_, err = p.tx.ExecContext(ctx,
		`INSERT INTO `+p.table+` (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixMilli())
	return p.wrap("put", err)
}

// Get decodes the value stored under key into out
func (p *Partition) Get(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	err := p.tx.QueryRowContext(ctx, `SELECT value FROM `+p.table+` WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, p.wrap("get", err)
	}
	if err := p.codec.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("store: get %s/%s: %w", p.name, key, err)
	}
	return true, nil
}

// GetAllKeys returns every key in ascending order
func (p *Partition) GetAllKeys(ctx context.Context) ([]string, error) {
	rows, err := p.tx.QueryContext(ctx, `SELECT key FROM `+p.table+` ORDER BY key`)
	if err != nil {
		return nil, p.wrap("keys", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, p.wrap("keys", err)
		}
		keys = append(keys, key)
	}
	return keys, p.wrap("keys", rows.Err())
}

// Delete removes key, reporting whether it existed
func (p *Partition) Delete(ctx context.Context, key string) (bool, error) {
	if err := p.writable(); err != nil {
		return false, err
	}
	res, err := p.tx.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE key = ?`, key)
	if err != nil {
		return false, p.wrap("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, p.wrap("delete", err)
	}
	return n > 0, nil
}

// Clear removes every key
func (p *Partition) Clear(ctx context.Context) error {
	if err := p.writable(); err != nil {
		return err
	}
	_, err := p.tx.ExecContext(ctx, `DELETE FROM `+p.table)
	return p.wrap("clear", err)
}

// Scan calls fn for every row in key order. decode unmarshals the row's
// value. Returning an error from fn stops the scan.
func (p *Partition) Scan(ctx context.Context, fn func(key string, decode func(out any) error) error) error {
	rows, err := p.tx.QueryContext(ctx, `SELECT key, value FROM `+p.table+` ORDER BY key`)
	if err != nil {
		return p.wrap("scan", err)
	}

	type row struct {
		key  string
		data []byte
	}
	// Drain first; fn may issue statements on the same transaction.
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.data); err != nil {
			rows.Close()
			return p.wrap("scan", err)
		}
		all = append(all, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return p.wrap("scan", err)
	}

	for _, r := range all {
		data := r.data
		decode := func(out any) error { return p.codec.Unmarshal(data, out) }
		if err := fn(r.key, decode); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partition) writable() error {
	if p.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, p.name)
	}
	return nil
}

func (p *Partition) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isMissingTable(err) {
		return fmt.Errorf("%w: %s: %w", errMissingPartition, p.name, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", types.ErrStoreUnavailable, op, p.name, err)
}
