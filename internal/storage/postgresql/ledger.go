package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

// ClaimMilestone атомарно резервирует уведомление (userID, milestone).
// Возвращает false, если запись уже существует.
func (s *Storage) ClaimMilestone(ctx context.Context, userID string, milestone models.Milestone, at time.Time) (bool, error) {
	const op = "storage.postgresql.ClaimMilestone"

	query := `INSERT INTO sent_trial_notifications (user_id, days_remaining, sent_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_id, days_remaining) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query, userID, int(milestone), at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ReleaseMilestone снимает резерв, если уведомление так и не было отправлено.
// Единственный случай удаления из реестра: запись о доставленном уведомлении не удаляется никогда.
func (s *Storage) ReleaseMilestone(ctx context.Context, userID string, milestone models.Milestone) error {
	const op = "storage.postgresql.ReleaseMilestone"

	query := `DELETE FROM sent_trial_notifications WHERE user_id = $1 AND days_remaining = $2`
	if _, err := s.DB.ExecContext(ctx, query, userID, int(milestone)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListLedger возвращает последние записи реестра уведомлений.
func (s *Storage) ListLedger(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	const op = "storage.postgresql.ListLedger"

	query := `SELECT user_id, days_remaining, sent_at
			  FROM sent_trial_notifications
			  ORDER BY sent_at DESC
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.LedgerEntry
	for rows.Next() {
		var (
			e    models.LedgerEntry
			days int
		)
		if err := rows.Scan(&e.UserID, &days, &e.SentAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		e.DaysRemaining = models.Milestone(days)
		result = append(result, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
