package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/shared/postgresql"
)

// SubscriptionStore persists webhook subscriptions. Unregistering is a soft
// delete: rows are deactivated, never removed.
type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(pg *postgresql.Client) *SubscriptionStore {
	return &SubscriptionStore{db: pg.GetDB()}
}

func (s *SubscriptionStore) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID,
		sub.URL,
		sub.Secret,
		pq.Array(sub.Events),
		sub.IsActive,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return persistenceError(err, "failed to save subscription")
	}
	return nil
}

func (s *SubscriptionStore) GetSubscription(ctx context.Context, id string) (domain.Subscription, error) {
	var row subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE subscription_id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, domain.NotFoundError("subscription", id)
		}
		return domain.Subscription{}, persistenceError(err, "failed to get subscription")
	}
	return row.toDomain(), nil
}

func (s *SubscriptionStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return s.list(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE is_active ORDER BY created_at ASC`)
}

// ListSubscriptions includes deactivated rows.
func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return s.list(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions ORDER BY created_at ASC`)
}

func (s *SubscriptionStore) list(ctx context.Context, query string) ([]domain.Subscription, error) {
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, persistenceError(err, "failed to list subscriptions")
	}

	subs := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toDomain())
	}
	return subs, nil
}

// DeactivateSubscription flips is_active off. It returns ErrNotFound when the
// subscription does not exist or is already inactive.
func (s *SubscriptionStore) DeactivateSubscription(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_subscriptions
		SET is_active = FALSE,
			updated_at = $1
		WHERE subscription_id = $2 AND is_active
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return persistenceError(err, "failed to deactivate subscription")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return domain.NotFoundError("subscription", id)
	}
	return nil
}
