// Package storagetest содержит хранилище в памяти для тестов сервисов.
// Поведение повторяет postgresql и mongodb: те же ошибки и те же ограничения уникальности.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

type ledgerKey struct {
	userID    string
	milestone models.Milestone
}

type purchaseKey struct {
	transactionID string
	platform      models.Platform
}

// Memory хранилище в памяти.
type Memory struct {
	mu            sync.Mutex
	Users         map[string]*models.UserAccount
	Purchases     []models.PurchaseRecord
	Subscriptions map[string]models.SubscriptionSummary
	Restores      []models.RestoreAttempt
	TrialLogs     []models.TrialLogEntry
	Ledger        map[ledgerKey]models.LedgerEntry
	Notifications []models.Notification
	Webhooks      []models.WebhookLog
	purchaseIndex map[purchaseKey]int
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		Users:         make(map[string]*models.UserAccount),
		Subscriptions: make(map[string]models.SubscriptionSummary),
		Ledger:        make(map[ledgerKey]models.LedgerEntry),
		purchaseIndex: make(map[purchaseKey]int),
	}
}

func cloneUser(u *models.UserAccount) *models.UserAccount {
	c := *u
	if u.Trial != nil {
		t := *u.Trial
		c.Trial = &t
	}
	if u.Paid != nil {
		p := *u.Paid
		c.Paid = &p
	}
	return &c
}

// PutUser кладёт учётную запись как есть, без проверок.
func (m *Memory) PutUser(u models.UserAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[u.UserID] = cloneUser(&u)
}

// User возвращает копию учётной записи или nil.
func (m *Memory) User(userID string) *models.UserAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (m *Memory) CreateUser(_ context.Context, user models.UserAccount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[user.UserID]; ok {
		return false, nil
	}
	m.Users[user.UserID] = cloneUser(&user)
	return true, nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return nil, fmt.Errorf("storagetest.GetUser: %w", storage.ErrUserNotFound)
	}
	return cloneUser(u), nil
}

func (m *Memory) UpdateUser(_ context.Context, userID string, patch models.AccountPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("storagetest.UpdateUser: %w", storage.ErrUserNotFound)
	}
	applyPatch(u, patch)
	return nil
}

func applyPatch(u *models.UserAccount, patch models.AccountPatch) {
	if patch.Tier != nil {
		u.Tier = *patch.Tier
	}
	if patch.IsTrial != nil {
		u.IsTrial = *patch.IsTrial
	}
	switch {
	case patch.Trial != nil:
		t := *patch.Trial
		u.Trial = &t
	case patch.ClearTrial:
		u.Trial = nil
	}
	if patch.Paid != nil {
		p := *patch.Paid
		u.Paid = &p
	}
}

func (m *Memory) StartTrial(_ context.Context, userID string, window models.TrialWindow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok || u.TrialUsed {
		return false, nil
	}
	u.IsTrial = true
	u.TrialUsed = true
	u.Tier = models.TierPremium
	u.Trial = &window
	return true, nil
}

func (m *Memory) ListTrialUsers(_ context.Context) ([]*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.UserAccount
	for _, u := range m.Users {
		if u.IsTrial && u.Trial != nil {
			result = append(result, cloneUser(u))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (m *Memory) CountUsers(_ context.Context) (total, premium, trial int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		total++
		if u.Tier == models.TierPremium {
			premium++
		}
		if u.IsTrial {
			trial++
		}
	}
	return total, premium, trial, nil
}

func (m *Memory) InsertTrialLog(_ context.Context, e models.TrialLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrialLogs = append(m.TrialLogs, e)
	return nil
}

func (m *Memory) FindPurchaseByTransaction(_ context.Context, transactionID string, platform models.Platform) (*models.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.purchaseIndex[purchaseKey{transactionID, platform}]
	if !ok {
		return nil, fmt.Errorf("storagetest.FindPurchaseByTransaction: %w", storage.ErrPurchaseNotFound)
	}
	p := m.Purchases[i]
	return &p, nil
}

// RecordPurchase применяет покупку целиком или не меняет ничего.
func (m *Memory) RecordPurchase(_ context.Context, p models.PurchaseRecord, patch models.AccountPatch, sub models.SubscriptionSummary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey{p.TransactionID, p.Platform}
	if _, ok := m.purchaseIndex[key]; ok {
		return false, nil
	}
	u, ok := m.Users[p.UserID]
	if !ok {
		return false, fmt.Errorf("storagetest.RecordPurchase: %w", storage.ErrUserNotFound)
	}

	m.purchaseIndex[key] = len(m.Purchases)
	m.Purchases = append(m.Purchases, p)
	applyPatch(u, patch)
	if prev, ok := m.Subscriptions[sub.UserID]; ok {
		sub.CreatedAt = prev.CreatedAt
	}
	sub.CancelledAt = nil
	m.Subscriptions[sub.UserID] = sub
	return true, nil
}

func (m *Memory) CountVerifiedPurchases(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Purchases {
		if p.UserID == userID && p.Verified {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListPurchases(_ context.Context, userID string, limit int) ([]*models.PurchaseRecord, error) {
	return m.purchases(func(p models.PurchaseRecord) bool { return p.UserID == userID }, limit), nil
}

func (m *Memory) RecentPurchases(_ context.Context, limit int) ([]*models.PurchaseRecord, error) {
	return m.purchases(func(models.PurchaseRecord) bool { return true }, limit), nil
}

func (m *Memory) purchases(match func(models.PurchaseRecord) bool, limit int) []*models.PurchaseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.PurchaseRecord
	for i := len(m.Purchases) - 1; i >= 0 && len(result) < limit; i-- {
		p := m.Purchases[i]
		if !match(p) {
			continue
		}
		p.ReceiptData = ""
		result = append(result, &p)
	}
	return result
}

func (m *Memory) CountPurchases(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Purchases)), nil
}

func (m *Memory) CancelSubscription(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("storagetest.CancelSubscription: %w", storage.ErrUserNotFound)
	}
	if u.Paid != nil {
		u.Paid.AutoRenewing = false
		u.Paid.CancelledAt = &at
	}
	if sub, ok := m.Subscriptions[userID]; ok {
		sub.AutoRenewing = false
		sub.CancelledAt = &at
		sub.UpdatedAt = at
		m.Subscriptions[userID] = sub
	}
	return nil
}

func (m *Memory) InsertRestoreAttempt(_ context.Context, a models.RestoreAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Restores = append(m.Restores, a)
	return nil
}

func (m *Memory) InsertWebhookLog(_ context.Context, l models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Webhooks = append(m.Webhooks, l)
	return nil
}

func (m *Memory) ClaimMilestone(_ context.Context, userID string, milestone models.Milestone, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey{userID, milestone}
	if _, ok := m.Ledger[key]; ok {
		return false, nil
	}
	m.Ledger[key] = models.LedgerEntry{UserID: userID, DaysRemaining: milestone, SentAt: at}
	return true, nil
}

func (m *Memory) ReleaseMilestone(_ context.Context, userID string, milestone models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Ledger, ledgerKey{userID, milestone})
	return nil
}

// Claimed сообщает, занята ли контрольная точка в реестре.
func (m *Memory) Claimed(userID string, milestone models.Milestone) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Ledger[ledgerKey{userID, milestone}]
	return ok
}

func (m *Memory) ListLedger(_ context.Context, limit int) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.LedgerEntry, 0, len(m.Ledger))
	for _, e := range m.Ledger {
		e := e
		result = append(result, &e)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SentAt.Equal(result[j].SentAt) {
			return result[i].SentAt.After(result[j].SentAt)
		}
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].DaysRemaining > result[j].DaysRemaining
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// LedgerSize возвращает число записей реестра.
func (m *Memory) LedgerSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Ledger)
}

func (m *Memory) InsertNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Notification
	for i := len(m.Notifications) - 1; i >= 0 && len(result) < limit; i-- {
		if n := m.Notifications[i]; n.TargetUserID == userID {
			result = append(result, &n)
		}
	}
	return result, nil
}
