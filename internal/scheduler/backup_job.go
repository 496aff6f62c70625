package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/reliability"
)

// backupTimeout bounds one backup run including the upload.
const backupTimeout = 15 * time.Minute

// BackupJob runs the off-site backup and rotates old archives.
type BackupJob struct {
	service *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(service *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name implements the Job interface.
func (j *BackupJob) Name() string {
	return "offsite_backup"
}

// Run implements the Job interface.
func (j *BackupJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	// Rotation failure keeps extra archives around; the backup itself landed.
	if err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
