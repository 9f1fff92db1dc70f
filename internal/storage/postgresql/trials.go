package postgresql

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

// InsertTrialLog записывает аудит запуска пробного периода.
func (s *Storage) InsertTrialLog(ctx context.Context, e models.TrialLogEntry) error {
	const op = "storage.postgresql.InsertTrialLog"

	query := `INSERT INTO trial_logs (id, user_id, started_at, ends_at, duration_days)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		e.ID, e.UserID, e.StartedAt, e.EndsAt, e.DurationDays); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
