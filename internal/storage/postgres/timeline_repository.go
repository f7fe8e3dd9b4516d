package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

type timelineRepository struct {
	db *sqlx.DB
}

type timelineRow struct {
	SaleID   string    `db:"sale_id"`
	Type     string    `db:"type"`
	Reason   string    `db:"reason"`
	Occurred time.Time `db:"occurred"`
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (sale_id, type, reason, occurred)
		VALUES ($1,$2,$3,$4)
	`, event.SaleID, event.Type, event.Reason, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	return nil
}

// List возвращает события в порядке записи; одинаковое время упорядочивается по id.
func (r *timelineRepository) List(saleID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var rows []timelineRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT sale_id, type, reason, occurred
		FROM timeline_events
		WHERE sale_id = $1
		ORDER BY occurred ASC, id ASC
	`, saleID); err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.TimelineEvent{
			SaleID:   row.SaleID,
			Type:     row.Type,
			Reason:   row.Reason,
			Occurred: row.Occurred,
		})
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
