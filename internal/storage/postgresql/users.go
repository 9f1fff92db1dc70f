package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

const userColumns = `user_id, email, subscription_tier, is_trial, trial_used,
	trial_started_at, trial_ends_at,
	subscription_product_id, subscription_platform, subscription_expires_at,
	subscription_auto_renewing, subscription_cancelled_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.UserAccount, error) {
	var (
		u                       models.UserAccount
		tier                    string
		trialStarted, trialEnds sql.NullTime
		productID, platform     sql.NullString
		expiresAt, cancelledAt  sql.NullTime
		autoRenewing            bool
	)
	if err := row.Scan(&u.UserID, &u.Email, &tier, &u.IsTrial, &u.TrialUsed,
		&trialStarted, &trialEnds,
		&productID, &platform, &expiresAt,
		&autoRenewing, &cancelledAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Tier = models.Tier(tier)

	if trialStarted.Valid && trialEnds.Valid {
		u.Trial = &models.TrialWindow{
			StartedAt: trialStarted.Time.UTC(),
			EndsAt:    trialEnds.Time.UTC(),
		}
	}
	if expiresAt.Valid {
		u.Paid = &models.PaidPlan{
			ProductID:    productID.String,
			Platform:     models.Platform(platform.String),
			ExpiresAt:    expiresAt.Time.UTC(),
			AutoRenewing: autoRenewing,
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time.UTC()
			u.Paid.CancelledAt = &t
		}
	}
	return &u, nil
}

// CreateUser создаёт учётную запись, если её ещё нет. Возвращает true, если запись создана.
func (s *Storage) CreateUser(ctx context.Context, user models.UserAccount) (bool, error) {
	const op = "storage.postgresql.CreateUser"

	query := `INSERT INTO users (user_id, email, subscription_tier, is_trial, trial_used, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (user_id) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query,
		user.UserID, user.Email, string(user.Tier), user.IsTrial, user.TrialUsed, user.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// GetUser возвращает учётную запись по идентификатору.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.UserAccount, error) {
	const op = "storage.postgresql.GetUser"

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// execer общая часть *sql.DB и *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpdateUser применяет частичное обновление к учётной записи.
func (s *Storage) UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error {
	const op = "storage.postgresql.UpdateUser"

	if err := updateUser(ctx, s.DB, userID, patch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func updateUser(ctx context.Context, ex execer, userID string, patch models.AccountPatch) error {
	if patch.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Tier != nil {
		set("subscription_tier", string(*patch.Tier))
	}
	if patch.IsTrial != nil {
		set("is_trial", *patch.IsTrial)
	}
	switch {
	case patch.Trial != nil:
		set("trial_started_at", patch.Trial.StartedAt)
		set("trial_ends_at", patch.Trial.EndsAt)
	case patch.ClearTrial:
		sets = append(sets, "trial_started_at = NULL", "trial_ends_at = NULL")
	}
	if patch.Paid != nil {
		set("subscription_product_id", patch.Paid.ProductID)
		set("subscription_platform", string(patch.Paid.Platform))
		set("subscription_expires_at", patch.Paid.ExpiresAt)
		set("subscription_auto_renewing", patch.Paid.AutoRenewing)
		set("subscription_cancelled_at", patch.Paid.CancelledAt)
	}

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE user_id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// StartTrial атомарно открывает пробный период, только если он ещё не использовался.
// Возвращает false, если trial_used уже установлен.
func (s *Storage) StartTrial(ctx context.Context, userID string, window models.TrialWindow) (bool, error) {
	const op = "storage.postgresql.StartTrial"

	query := `UPDATE users
			  SET is_trial = true,
			      trial_used = true,
			      subscription_tier = 'premium',
			      trial_started_at = $1,
			      trial_ends_at = $2
			  WHERE user_id = $3 AND trial_used = false`
	res, err := s.DB.ExecContext(ctx, query, window.StartedAt, window.EndsAt, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ListTrialUsers возвращает пользователей с активным флагом пробного периода и известной датой окончания.
func (s *Storage) ListTrialUsers(ctx context.Context) ([]*models.UserAccount, error) {
	const op = "storage.postgresql.ListTrialUsers"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE is_trial = true AND trial_ends_at IS NOT NULL
			  ORDER BY trial_ends_at`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountUsers возвращает общее число пользователей, число премиум-пользователей и число пользователей на пробном периоде.
func (s *Storage) CountUsers(ctx context.Context) (total, premium, trial int64, err error) {
	const op = "storage.postgresql.CountUsers"

	query := `SELECT
			      COUNT(*),
			      COUNT(*) FILTER (WHERE subscription_tier = 'premium'),
			      COUNT(*) FILTER (WHERE is_trial = true)
			  FROM users`
	if err = s.DB.QueryRowContext(ctx, query).Scan(&total, &premium, &trial); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, premium, trial, nil
}
