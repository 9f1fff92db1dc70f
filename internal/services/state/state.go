// Package state вычисляет фактический статус подписки пользователя на момент времени.
//
// Evaluate не меняет учётную запись, а только сообщает,
// какое частичное обновление (Writeback) вызывающий код должен сохранить,
// если пробный период или оплаченная подписка уже истекли.
package state

import (
	"math"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

const day = 24 * time.Hour

// Transition тип обнаруженного перехода состояния.
type Transition string

const (
	TransitionNone                Transition = ""
	TransitionTrialExpired        Transition = "trial_expired"
	TransitionSubscriptionExpired Transition = "subscription_expired"
)

// EffectiveStatus фактический статус подписки.
type EffectiveStatus struct {
	IsActive      bool
	Tier          models.Tier
	IsTrial       bool
	DaysRemaining int
	Transition    Transition
	// Writeback не nil, если учётную запись нужно понизить до бесплатного уровня.
	Writeback *models.AccountPatch
}

// NeedsWriteback сообщает, требуется ли сохранить изменения.
func (s EffectiveStatus) NeedsWriteback() bool {
	return s.Writeback != nil
}

// Evaluate вычисляет статус учётной записи u на момент now.
func Evaluate(u *models.UserAccount, now time.Time) EffectiveStatus {
	if u.IsTrial && u.Trial != nil {
		remaining := u.Trial.EndsAt.Sub(now)
		if remaining <= 0 {
			return EffectiveStatus{
				Tier:       models.TierFree,
				Transition: TransitionTrialExpired,
				Writeback:  TrialExpiredPatch(),
			}
		}
		return EffectiveStatus{
			IsActive:      true,
			Tier:          models.TierPremium,
			IsTrial:       true,
			DaysRemaining: WholeDays(remaining),
		}
	}

	if u.Tier == models.TierPremium && u.Paid != nil {
		if now.After(u.Paid.ExpiresAt) {
			return EffectiveStatus{
				Tier:       models.TierFree,
				Transition: TransitionSubscriptionExpired,
				Writeback:  &models.AccountPatch{Tier: models.Ptr(models.TierFree)},
			}
		}
		return EffectiveStatus{
			IsActive:      true,
			Tier:          models.TierPremium,
			DaysRemaining: WholeDays(u.Paid.ExpiresAt.Sub(now)),
		}
	}

	tier := u.Tier
	if tier == "" {
		tier = models.TierFree
	}
	return EffectiveStatus{Tier: tier}
}

// TrialExpiredPatch переводит пользователя из пробного периода на бесплатный уровень.
func TrialExpiredPatch() *models.AccountPatch {
	return &models.AccountPatch{
		Tier:       models.Ptr(models.TierFree),
		IsTrial:    models.Ptr(false),
		ClearTrial: true,
	}
}

// WholeDays число полных суток в d с отбрасыванием дробной части: 23 часа дают 0.
func WholeDays(d time.Duration) int {
	return int(d / day)
}

// FloorDays число суток в d с округлением вниз: -2 часа дают -1.
func FloorDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
