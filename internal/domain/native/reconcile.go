package native

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

// ReconcileReport summarizes a Reconcile sweep
type ReconcileReport struct {
	Scanned      int `json:"scanned"`
	Committed    int `json:"committed"`
	Deleted      int `json:"deleted"`
	Unregistered int `json:"unregistered"`
}

// Reconcile repairs saga leftovers. Pending records younger than grace are
// skipped so an in-flight persist is not raced.
func (b *Backend) Reconcile(ctx context.Context, grace time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	cutoff := b.now().Add(-grace)

	var pending []Record
	present := make(map[string]struct{})
	err := b.conn.WithPartition(ctx, Partition, store.ReadOnly, func(p *store.Partition) error {
		return p.Scan(ctx, func(key string, decode func(any) error) error {
			report.Scanned++
			present[key] = struct{}{}
			var r Record
			if err := decode(&r); err != nil {
				b.logger.Warn("skipping undecodable record", zap.String("key", key), zap.Error(err))
				return nil
			}
			if r.Status == StatusPending && !r.UpdatedAt.After(cutoff) {
				pending = append(pending, r)
			}
			return nil
		})
	})
	if err != nil {
		return report, fmt.Errorf("scan native records: %w", err)
	}

	for i := range pending {
		record := &pending[i]
		_, err := b.registry.GetRecord(ctx, record.Key)
		switch {
		case err == nil:
			record.Status = StatusCommitted
			if err := b.put(ctx, record); err != nil {
				return report, fmt.Errorf("commit %s: %w", record.Key, err)
			}
			report.Committed++
			b.metrics.RecordReconciled("committed")
		case types.ReasonFor(err) == types.ReasonNotFound:
			if _, err := b.delete(ctx, record.Key); err != nil {
				return report, fmt.Errorf("delete orphan %s: %w", record.Key, err)
			}
			delete(present, record.Key)
			report.Deleted++
			b.metrics.RecordReconciled("deleted")
		default:
			return report, fmt.Errorf("lookup %s: %w", record.Key, err)
		}
	}

	keys, err := b.registry.ListKeys(ctx)
	if err != nil {
		return report, fmt.Errorf("list registry: %w", err)
	}
	for _, key := range keys {
		if _, ok := present[key]; ok {
			continue
		}
		rec, err := b.registry.GetRecord(ctx, key)
		if err != nil || rec.StorageType != types.StorageNativeHandle {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := b.registry.RemoveKey(ctx, key); err != nil {
			return report, fmt.Errorf("unregister %s: %w", key, err)
		}
		report.Unregistered++
		b.metrics.RecordReconciled("unregistered")
	}

	if report.Committed+report.Deleted+report.Unregistered > 0 {
		b.logger.Info("reconciled native records",
			zap.Int("scanned", report.Scanned),
			zap.Int("committed", report.Committed),
			zap.Int("deleted", report.Deleted),
			zap.Int("unregistered", report.Unregistered))
	}
	return report, nil
}
