package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/backup"
	"github.com/skourlis/allocator/internal/queue"
)

// WALCheckpointer is any database that can checkpoint its write-ahead log.
type WALCheckpointer interface {
	WALCheckpoint(mode string) error
}

// CheckpointTarget names a database for checkpoint maintenance.
type CheckpointTarget struct {
	Name string
	DB   WALCheckpointer
}

// RegisterMaintenanceHandlers binds the maintenance job types: WAL
// checkpoints for every database and cloud backups. backupService may be nil
// when backups are not configured; the backup job then fails with a clear
// error instead of being silently dropped.
func RegisterMaintenanceHandlers(m *queue.Manager, targets []CheckpointTarget, backupService *backup.Service, log zerolog.Logger) {
	m.RegisterHandler(queue.JobTypeWALCheckpoint, walCheckpointHandler(targets))
	m.RegisterHandler(queue.JobTypeBackup, backupHandler(backupService, log))
}

// walCheckpointHandler truncates the WAL of every registered database. One
// failing database does not stop the others; the first error is reported.
func walCheckpointHandler(targets []CheckpointTarget) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (interface{}, error) {
		var firstErr error
		checkpointed := make([]string, 0, len(targets))

		for _, target := range targets {
			if err := target.DB.WALCheckpoint("TRUNCATE"); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("checkpoint %s: %w", target.Name, err)
				}
				continue
			}
			checkpointed = append(checkpointed, target.Name)
		}

		if firstErr != nil {
			return nil, firstErr
		}
		return map[string]interface{}{"checkpointed": checkpointed}, nil
	}
}

// backupHandler creates and uploads a backup archive, then rotates old
// archives. Rotation failures are logged but do not fail the job: the new
// backup is already safe.
func backupHandler(backupService *backup.Service, log zerolog.Logger) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (interface{}, error) {
		if backupService == nil {
			return nil, fmt.Errorf("backups are not configured")
		}

		info, err := backupService.CreateAndUpload(ctx)
		if err != nil {
			return nil, err
		}

		if err := backupService.RotateOldBackups(ctx); err != nil {
			log.Warn().Err(err).Msg("Backup rotation failed")
		}
		return info, nil
	}
}
