package postgresql

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

// InsertNotification кладёт уведомление во входящие пользователя.
func (s *Storage) InsertNotification(ctx context.Context, n models.Notification) error {
	const op = "storage.postgresql.InsertNotification"

	query := `INSERT INTO notifications (id, title, message, type, icon, target_user_id, created_at, created_by)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.DB.ExecContext(ctx, query,
		n.ID, n.Title, n.Message, n.Type, n.Icon, n.TargetUserID, n.CreatedAt, n.CreatedBy); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListNotifications возвращает входящие пользователя от новых к старым.
func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	const op = "storage.postgresql.ListNotifications"

	query := `SELECT id, title, message, type, icon, target_user_id, created_at, created_by
			  FROM notifications
			  WHERE target_user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Type, &n.Icon,
			&n.TargetUserID, &n.CreatedAt, &n.CreatedBy); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
