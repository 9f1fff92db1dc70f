package models

import "time"

// Milestone контрольная точка уведомлений об окончании пробного периода:
// количество оставшихся дней (3, 1) или 0 для "пробный период закончился".
type Milestone int

const (
	MilestoneThreeDays Milestone = 3
	MilestoneOneDay    Milestone = 1
	MilestoneExpired   Milestone = 0
)

// LedgerEntry запись реестра отправленных уведомлений. Ключ (UserID, Milestone).
type LedgerEntry struct {
	UserID        string    `json:"user_id" bson:"user_id"`
	DaysRemaining Milestone `json:"days_remaining" bson:"days_remaining"`
	SentAt        time.Time `json:"sent_at" bson:"sent_at"`
}

// Notification уведомление во входящих пользователя.
type Notification struct {
	ID           string    `json:"id" bson:"id"`
	Title        string    `json:"title" bson:"title"`
	Message      string    `json:"message" bson:"message"`
	Type         string    `json:"type" bson:"type"`
	Icon         string    `json:"icon" bson:"icon"`
	TargetUserID string    `json:"target_user_id" bson:"target_user_id"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	CreatedBy    string    `json:"created_by" bson:"created_by"`
}

// NotificationPayload сообщение, которое планировщик передаёт издателю.
type NotificationPayload struct {
	Title        string `json:"title"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}
