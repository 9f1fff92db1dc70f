package models

import "time"

// TrialLogEntry неизменяемая запись аудита о запуске пробного периода.
type TrialLogEntry struct {
	ID           string    `json:"id" bson:"id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	StartedAt    time.Time `json:"started_at" bson:"started_at"`
	EndsAt       time.Time `json:"ends_at" bson:"ends_at"`
	DurationDays int       `json:"duration_days" bson:"duration_days"`
}
