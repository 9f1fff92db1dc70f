package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// FindPurchaseByTransaction ищет покупку по идентификатору транзакции и платформе.
func (s *Storage) FindPurchaseByTransaction(ctx context.Context, transactionID string, platform models.Platform) (*models.PurchaseRecord, error) {
	const op = "storage.postgresql.FindPurchaseByTransaction"

	query := `SELECT user_id, platform, product_id, transaction_id, receipt_data,
			      verified, verification_status, created_at, verified_at
			  FROM purchases
			  WHERE transaction_id = $1 AND platform = $2`
	var (
		p    models.PurchaseRecord
		plat string
	)
	err := s.DB.QueryRowContext(ctx, query, transactionID, string(platform)).Scan(
		&p.UserID, &plat, &p.ProductID, &p.TransactionID, &p.ReceiptData,
		&p.Verified, &p.VerificationStatus, &p.CreatedAt, &p.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrPurchaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.Platform = models.Platform(plat)
	return &p, nil
}

// RecordPurchase в одной транзакции сохраняет покупку, применяет patch к учётной записи
// и обновляет сводную запись о подписке. Возвращает false без изменений, если покупка
// с той же парой (transaction_id, platform) уже записана.
func (s *Storage) RecordPurchase(ctx context.Context, p models.PurchaseRecord, patch models.AccountPatch, sub models.SubscriptionSummary) (bool, error) {
	const op = "storage.postgresql.RecordPurchase"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inserted, err := insertPurchase(ctx, tx, p)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		return false, nil
	}
	if err = updateUser(ctx, tx, p.UserID, patch); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = upsertSubscription(ctx, tx, sub); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func insertPurchase(ctx context.Context, ex execer, p models.PurchaseRecord) (bool, error) {
	query := `INSERT INTO purchases (user_id, platform, product_id, transaction_id, receipt_data,
			      verified, verification_status, created_at, verified_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (transaction_id, platform) DO NOTHING`
	res, err := ex.ExecContext(ctx, query,
		p.UserID, string(p.Platform), p.ProductID, p.TransactionID, p.ReceiptData,
		p.Verified, p.VerificationStatus, p.CreatedAt, p.VerifiedAt)
	if err != nil {
		return false, err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// CountVerifiedPurchases возвращает число подтверждённых покупок пользователя.
func (s *Storage) CountVerifiedPurchases(ctx context.Context, userID string) (int, error) {
	const op = "storage.postgresql.CountVerifiedPurchases"

	var count int
	query := `SELECT COUNT(*) FROM purchases WHERE user_id = $1 AND verified = true`
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// ListPurchases возвращает покупки пользователя от новых к старым. Данные чека не загружаются.
func (s *Storage) ListPurchases(ctx context.Context, userID string, limit int) ([]*models.PurchaseRecord, error) {
	const op = "storage.postgresql.ListPurchases"

	query := `SELECT user_id, platform, product_id, transaction_id,
			      verified, verification_status, created_at, verified_at
			  FROM purchases
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	return s.queryPurchases(ctx, op, query, userID, limit)
}

// RecentPurchases возвращает последние покупки всех пользователей.
func (s *Storage) RecentPurchases(ctx context.Context, limit int) ([]*models.PurchaseRecord, error) {
	const op = "storage.postgresql.RecentPurchases"

	query := `SELECT user_id, platform, product_id, transaction_id,
			      verified, verification_status, created_at, verified_at
			  FROM purchases
			  ORDER BY created_at DESC
			  LIMIT $1`
	return s.queryPurchases(ctx, op, query, limit)
}

func (s *Storage) queryPurchases(ctx context.Context, op, query string, args ...any) ([]*models.PurchaseRecord, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PurchaseRecord
	for rows.Next() {
		var (
			p        models.PurchaseRecord
			platform string
		)
		if err := rows.Scan(&p.UserID, &platform, &p.ProductID, &p.TransactionID,
			&p.Verified, &p.VerificationStatus, &p.CreatedAt, &p.VerifiedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.Platform = models.Platform(platform)
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountPurchases возвращает общее число покупок.
func (s *Storage) CountPurchases(ctx context.Context) (int64, error) {
	const op = "storage.postgresql.CountPurchases"

	var count int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// upsertSubscription создаёт или заменяет сводную запись о подписке пользователя.
func upsertSubscription(ctx context.Context, ex execer, sub models.SubscriptionSummary) error {
	query := `INSERT INTO subscriptions (user_id, product_id, platform, transaction_id,
			      is_active, expires_at, auto_renewing, cancelled_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9)
			  ON CONFLICT (user_id) DO UPDATE
			  SET product_id = EXCLUDED.product_id,
			      platform = EXCLUDED.platform,
			      transaction_id = EXCLUDED.transaction_id,
			      is_active = EXCLUDED.is_active,
			      expires_at = EXCLUDED.expires_at,
			      auto_renewing = EXCLUDED.auto_renewing,
			      cancelled_at = NULL,
			      updated_at = EXCLUDED.updated_at`
	_, err := ex.ExecContext(ctx, query,
		sub.UserID, sub.ProductID, string(sub.Platform), sub.TransactionID,
		sub.IsActive, sub.ExpiresAt, sub.AutoRenewing, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// CancelSubscription отключает автопродление у пользователя и в сводной записи.
func (s *Storage) CancelSubscription(ctx context.Context, userID string, at time.Time) error {
	const op = "storage.postgresql.CancelSubscription"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users
			  SET subscription_auto_renewing = false,
			      subscription_cancelled_at = $1
			  WHERE user_id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE subscriptions
			  SET auto_renewing = false,
			      cancelled_at = $1,
			      updated_at = $1
			  WHERE user_id = $2`, at, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InsertRestoreAttempt записывает попытку восстановления покупок.
func (s *Storage) InsertRestoreAttempt(ctx context.Context, a models.RestoreAttempt) error {
	const op = "storage.postgresql.InsertRestoreAttempt"

	query := `INSERT INTO restore_attempts (id, user_id, platform, receipt_data, restored_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		a.ID, a.UserID, string(a.Platform), a.ReceiptData, a.RestoredAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InsertWebhookLog сохраняет уведомление магазина приложений.
func (s *Storage) InsertWebhookLog(ctx context.Context, l models.WebhookLog) error {
	const op = "storage.postgresql.InsertWebhookLog"

	query := `INSERT INTO webhook_logs (id, platform, notification_type, payload, received_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		l.ID, string(l.Platform), l.NotificationType, string(l.Payload), l.ReceivedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
