// Package models содержит доменные структуры подсистемы премиум-подписки:
// учётную запись пользователя с полями пробного периода и оплаченной подписки,
// записи о покупках, журнал пробных периодов и реестр отправленных уведомлений.
package models

import "time"

// Tier уровень подписки пользователя.
type Tier string

const (
	// TierFree бесплатный уровень.
	TierFree Tier = "free"
	// TierPremium премиум-уровень (пробный или оплаченный).
	TierPremium Tier = "premium"
)

// Platform магазин приложений, через который совершена покупка.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Valid сообщает, является ли платформа поддерживаемой.
func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// TrialWindow окно пробного периода. Присутствует только пока пользователь на пробном периоде.
type TrialWindow struct {
	StartedAt time.Time `json:"started_at" bson:"started_at"`
	EndsAt    time.Time `json:"ends_at" bson:"ends_at"`
}

// PaidPlan поля оплаченной подписки. Присутствуют только у пользователей с покупкой.
type PaidPlan struct {
	ProductID    string     `json:"product_id" bson:"product_id"`
	Platform     Platform   `json:"platform" bson:"platform"`
	ExpiresAt    time.Time  `json:"expires_at" bson:"expires_at"`
	AutoRenewing bool       `json:"auto_renewing" bson:"auto_renewing"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

// UserAccount учётная запись конечного пользователя.
//
// IsTrial хранится отдельно от Trial: запись может быть помечена как пробная,
// но не содержать окна (битые данные), такие записи планировщик пропускает.
type UserAccount struct {
	UserID    string       `json:"user_id" bson:"user_id"`
	Email     string       `json:"email" bson:"email"`
	Tier      Tier         `json:"subscription_tier" bson:"subscription_tier"`
	IsTrial   bool         `json:"is_trial" bson:"is_trial"`
	TrialUsed bool         `json:"trial_used" bson:"trial_used"`
	Trial     *TrialWindow `json:"trial,omitempty" bson:"trial,omitempty"`
	Paid      *PaidPlan    `json:"paid,omitempty" bson:"paid,omitempty"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
}

// TrialEndsAt возвращает конец пробного периода, если он известен.
func (u *UserAccount) TrialEndsAt() *time.Time {
	if u.Trial == nil {
		return nil
	}
	t := u.Trial.EndsAt
	return &t
}

// AccountPatch частичное обновление учётной записи. nil-поля не изменяются.
// ClearTrial удаляет окно пробного периода, TrialUsed при этом не трогается.
type AccountPatch struct {
	Tier       *Tier
	IsTrial    *bool
	Trial      *TrialWindow
	ClearTrial bool
	Paid       *PaidPlan
}

// Empty сообщает, что патч ничего не меняет.
func (p AccountPatch) Empty() bool {
	return p.Tier == nil && p.IsTrial == nil && p.Trial == nil && !p.ClearTrial && p.Paid == nil
}

// Ptr возвращает указатель на значение.
func Ptr[T any](v T) *T {
	return &v
}
