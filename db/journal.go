package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nnthruslpn/telegram-bot/db/models"
	"github.com/nnthruslpn/telegram-bot/dispatch"
)

// EscalationJournal persists scheduled escalations in SQLite so they survive
// a restart. It implements dispatch.Journal.
type EscalationJournal struct {
	gdb *gorm.DB
}

func NewEscalationJournal(gdb *gorm.DB) (*EscalationJournal, error) {
	if gdb == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	return &EscalationJournal{gdb: gdb}, nil
}

// Record upserts by job id; re-arming a journaled escalation after a restart
// records the same row again.
func (j *EscalationJournal) Record(e dispatch.Escalation) error {
	job := models.EscalationJob{
		ID:            e.ID,
		TaskID:        e.TaskID,
		ParticipantID: e.ParticipantID,
		Kind:          string(e.Kind),
		FireAt:        e.FireAt.UTC(),
		Status:        models.JobStatusPending,
	}
	return j.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fire_at", "status", "updated_at"}),
	}).Create(&job).Error
}

func (j *EscalationJournal) MarkFired(id string, outcome dispatch.EscalationOutcome, detail string) error {
	return j.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EscalationJob{}).
			Where("id = ?", id).
			Update("status", models.JobStatusFired).Error; err != nil {
			return err
		}
		run := models.EscalationRun{
			JobID:   id,
			FiredAt: time.Now().UTC(),
			Outcome: string(outcome),
			Detail:  detail,
		}
		return tx.Create(&run).Error
	})
}

func (j *EscalationJournal) Cancel(taskID int64) error {
	return j.gdb.Model(&models.EscalationJob{}).
		Where("task_id = ? AND status = ?", taskID, models.JobStatusPending).
		Update("status", models.JobStatusCanceled).Error
}

func (j *EscalationJournal) Pending() ([]dispatch.Escalation, error) {
	var jobs []models.EscalationJob
	if err := j.gdb.
		Where("status = ?", models.JobStatusPending).
		Order("fire_at asc").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	out := make([]dispatch.Escalation, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, dispatch.Escalation{
			ID:            job.ID,
			TaskID:        job.TaskID,
			ParticipantID: job.ParticipantID,
			Kind:          dispatch.EscalationKind(job.Kind),
			FireAt:        job.FireAt,
		})
	}
	return out, nil
}
