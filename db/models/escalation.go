package models

import "time"

// EscalationJob is one scheduled reminder or aggregate escalation. Pending
// jobs are re-armed at startup; everything else is history.
type EscalationJob struct {
	ID            string    `gorm:"primaryKey;size:36"`
	TaskID        int64     `gorm:"index;not null"`
	ParticipantID int64     `gorm:"not null;default:0"`
	Kind          string    `gorm:"size:16;not null"`
	FireAt        time.Time `gorm:"index;not null"`
	Status        string    `gorm:"size:16;not null;default:pending;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	JobStatusPending  = "pending"
	JobStatusFired    = "fired"
	JobStatusCanceled = "canceled"
)

// EscalationRun records what happened when a job fired.
type EscalationRun struct {
	ID      uint      `gorm:"primaryKey;autoIncrement"`
	JobID   string    `gorm:"index;size:36;not null"`
	FiredAt time.Time `gorm:"not null"`
	Outcome string    `gorm:"size:16;not null"`
	Detail  string    `gorm:"size:512"`
}
