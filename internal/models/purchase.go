package models

import "time"

// PurchaseRecord запись о покупке в магазине приложений. После вставки не изменяется.
// Пара (Platform, TransactionID) уникальна.
type PurchaseRecord struct {
	UserID             string    `json:"user_id" bson:"user_id"`
	Platform           Platform  `json:"platform" bson:"platform"`
	ProductID          string    `json:"product_id" bson:"product_id"`
	TransactionID      string    `json:"transaction_id" bson:"transaction_id"`
	ReceiptData        string    `json:"-" bson:"receipt_data"`
	Verified           bool      `json:"verified" bson:"verified"`
	VerificationStatus string    `json:"verification_status" bson:"verification_status"`
	CreatedAt          time.Time `json:"created_at" bson:"created_at"`
	VerifiedAt         time.Time `json:"verified_at" bson:"verified_at"`
}

// VerificationPending статус покупки, чек которой не проверялся в магазине.
const VerificationPending = "pending_production_validation"

// SubscriptionSummary сводная запись о текущей подписке пользователя, одна на пользователя.
type SubscriptionSummary struct {
	UserID        string     `json:"user_id" bson:"user_id"`
	ProductID     string     `json:"product_id" bson:"product_id"`
	Platform      Platform   `json:"platform" bson:"platform"`
	TransactionID string     `json:"transaction_id" bson:"transaction_id"`
	IsActive      bool       `json:"is_active" bson:"is_active"`
	ExpiresAt     time.Time  `json:"expires_at" bson:"expires_at"`
	AutoRenewing  bool       `json:"auto_renewing" bson:"auto_renewing"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// RestoreAttempt аудит попытки восстановления покупок.
type RestoreAttempt struct {
	ID          string    `json:"id" bson:"id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	Platform    Platform  `json:"platform" bson:"platform"`
	ReceiptData string    `json:"-" bson:"receipt_data"`
	RestoredAt  time.Time `json:"restored_at" bson:"restored_at"`
}

// WebhookLog сырое уведомление магазина приложений.
type WebhookLog struct {
	ID               string    `json:"id" bson:"id"`
	Platform         Platform  `json:"platform" bson:"platform"`
	NotificationType string    `json:"notification_type" bson:"notification_type"`
	Payload          []byte    `json:"payload" bson:"payload"`
	ReceivedAt       time.Time `json:"received_at" bson:"received_at"`
}

// SubscriptionStats агрегированная статистика для администратора.
type SubscriptionStats struct {
	TotalUsers      int64             `json:"total_users"`
	PremiumUsers    int64             `json:"premium_users"`
	FreeUsers       int64             `json:"free_users"`
	TrialUsers      int64             `json:"trial_users"`
	ConversionRate  float64           `json:"conversion_rate"`
	TotalPurchases  int64             `json:"total_purchases"`
	RecentPurchases []*PurchaseRecord `json:"recent_purchases"`
}
