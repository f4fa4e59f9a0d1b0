package services

import (
	"context"
	"time"

	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/models"
	"gorm.io/gorm"
)

const sweepBatchSize = 200

// SweepResult summarizes one pass of the overdue sweep
type SweepResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// OverdueSweeper re-derives the overdue flag of every job
type OverdueSweeper struct {
	db        *gorm.DB
	log       *logger.Logger
	now       func() time.Time
	batchSize int
}

// NewOverdueSweeper creates a sweeper. A nil log falls back to the global logger.
func NewOverdueSweeper(db *gorm.DB, log *logger.Logger) *OverdueSweeper {
	if log == nil {
		log = logger.L()
	}
	return &OverdueSweeper{
		db:        db,
		log:       log,
		now:       time.Now,
		batchSize: sweepBatchSize,
	}
}

// Sweep walks all jobs and writes overdue only where the derived value
// differs from the stored one. A failure on one job is logged and counted;
// the remaining jobs are still processed. Only a cancelled context or a
// failure to read the jobs aborts the pass.
func (s *OverdueSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	incomplete, err := s.incompleteCounts(ctx)
	if err != nil {
		return result, err
	}

	var batch []models.Job
	err = s.db.WithContext(ctx).
		Model(&models.Job{}).
		Select("id", "scheduled_date", "overdue").
		FindInBatches(&batch, s.batchSize, func(tx *gorm.DB, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := range batch {
				job := &batch[i]
				result.Scanned++

				derived := models.IsOverdue(job.ScheduledDate, now, incomplete[job.ID] > 0)
				changed, err := syncOverdue(s.db.WithContext(ctx), job, derived)
				if err != nil {
					result.Failed++
					s.log.Error("overdue sweep: failed to update job", "job_id", job.ID, "error", err)
					continue
				}
				if changed {
					result.Updated++
				}
			}
			return nil
		}).Error
	if err != nil {
		return result, err
	}

	s.log.Info("overdue sweep finished",
		"scanned", result.Scanned,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *OverdueSweeper) incompleteCounts(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		JobID uint
		Total int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.JobTask{}).
		Select("job_id, COUNT(*) AS total").
		Where("status <> ?", models.TaskStatusCompleted).
		Group("job_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.JobID] = row.Total
	}
	return counts, nil
}

// syncOverdue stores derived as job's overdue flag when it differs. The write
// is conditional on the previously read value and skips updated_at.
func syncOverdue(db *gorm.DB, job *models.Job, derived bool) (bool, error) {
	if job.Overdue == derived {
		return false, nil
	}
	res := db.Model(&models.Job{}).
		Where("id = ? AND overdue = ?", job.ID, job.Overdue).
		UpdateColumn("overdue", derived)
	if res.Error != nil {
		return false, res.Error
	}
	job.Overdue = derived
	return res.RowsAffected > 0, nil
}
