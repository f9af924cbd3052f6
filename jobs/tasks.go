package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/platform/db"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncLogPurge removes old sync log entries.
	TaskSyncLogPurge = "sync:purge_logs"
	// TaskOverdueCreditScan flags credits that stayed unpaid too long.
	TaskOverdueCreditScan = "credit:scan_overdue"
)

// SyncLogPurgePayload parameterises one purge run.
type SyncLogPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewSyncLogPurgeTask constructs the purge task.
func NewSyncLogPurgeTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SyncLogPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncLogPurge, data), nil
}

// NewSyncLogPurgeHandler deletes sync logs older than the payload's
// retention window.
func NewSyncLogPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SyncLogPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}

		cutoff := time.Now().UTC().Add(-payload.Retention)
		tag, err := pool.Exec(ctx, `DELETE FROM sync_log WHERE started_at < $1`, cutoff)
		if err != nil {
			return err
		}
		logger.Info("purged sync logs", "cutoff", cutoff, "deleted", tag.RowsAffected())
		return nil
	}
}

// OverdueCreditScanPayload parameterises one overdue scan.
type OverdueCreditScanPayload struct {
	OlderThanDays int `json:"older_than_days"`
}

// NewOverdueCreditScanTask constructs the scan task.
func NewOverdueCreditScanTask(olderThanDays int) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueCreditScanPayload{OlderThanDays: olderThanDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueCreditScan, data), nil
}

// NewOverdueCreditScanHandler logs, per tenant, the credits still unpaid
// past the age threshold so the boss dashboard can surface them.
func NewOverdueCreditScanHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueCreditScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OlderThanDays <= 0 {
			payload.OlderThanDays = 30
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -payload.OlderThanDays)
		rows, err := pool.Query(ctx,
			`SELECT boss_id, COUNT(*), COALESCE(SUM(amount - amount_paid), 0)
			 FROM credit
			 WHERE is_paid = FALSE AND created_at < $1
			 GROUP BY boss_id`, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var bossID int64
			var count int
			var outstanding pgtype.Numeric
			if err := rows.Scan(&bossID, &count, &outstanding); err != nil {
				return err
			}
			logger.Warn("overdue credits found",
				"boss_id", bossID, "credits", count,
				"outstanding", db.NumericToDecimal(outstanding).String())
		}
		return rows.Err()
	}
}
