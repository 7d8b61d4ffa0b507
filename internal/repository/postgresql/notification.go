package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, recipient_id, sender_id, absence_request_id, type, title, message, data, read_at, created_at`

type notificationRepositoryImpl struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepositoryImpl{db: db}
}

// Save queues one INSERT per notification in a single round trip.
func (r *notificationRepositoryImpl) Save(ctx context.Context, notifications ...*notification.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		var data []byte
		if n.Data != nil {
			var err error
			if data, err = json.Marshal(n.Data); err != nil {
				return fmt.Errorf("marshal notification data: %w", err)
			}
		}
		batch.Queue(`INSERT INTO notifications (`+notificationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			n.ID, n.RecipientID, n.SenderID, n.RequestID, string(n.Type),
			n.Title, n.Message, data, n.ReadAt, n.CreatedAt,
		)
	}

	results := GetQuerier(ctx, r.db).SendBatch(ctx, batch)
	defer results.Close()
	for range notifications {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

func (r *notificationRepositoryImpl) List(ctx context.Context, filter notification.Filter) ([]notification.Notification, int, error) {
	filter.Normalize()
	q := GetQuerier(ctx, r.db)

	conds := []string{"recipient_id = $1"}
	args := []interface{}{filter.RecipientID}
	if filter.UnreadOnly {
		conds = append(conds, "read_at IS NULL")
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conds = append(conds, fmt.Sprintf("absence_request_id = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, notificationColumns, where, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}

	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, 0, fmt.Errorf("scan notifications: %w", err)
	}
	return list, total, nil
}

func (r *notificationRepositoryImpl) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := GetQuerier(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepositoryImpl) MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int, error) {
	query := `UPDATE notifications SET read_at = $1 WHERE recipient_id = $2 AND read_at IS NULL`
	args := []interface{}{at, recipientID}
	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}

	tag, err := GetQuerier(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *notificationRepositoryImpl) Delete(ctx context.Context, recipientID, id string) error {
	tag, err := GetQuerier(ctx, r.db).Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepositoryImpl) Preferences(ctx context.Context, userID string) ([]notification.Preference, error) {
	rows, err := GetQuerier(ctx, r.db).Query(ctx, `
		SELECT user_id, type, email_enabled, push_enabled, updated_at
		FROM notification_preferences
		WHERE user_id = $1
		ORDER BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	prefs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.Preference, error) {
		var p notification.Preference
		var t string
		err := row.Scan(&p.UserID, &t, &p.EmailEnabled, &p.PushEnabled, &p.UpdatedAt)
		p.Type = notification.Type(t)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	return prefs, nil
}

func (r *notificationRepositoryImpl) SavePreference(ctx context.Context, pref notification.Preference) error {
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now()
	}
	_, err := GetQuerier(ctx, r.db).Exec(ctx, `
		INSERT INTO notification_preferences (user_id, type, email_enabled, push_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, type) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
		    push_enabled = EXCLUDED.push_enabled,
		    updated_at = EXCLUDED.updated_at`,
		pref.UserID, string(pref.Type), pref.EmailEnabled, pref.PushEnabled, pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

func (r *notificationRepositoryImpl) PushEnabled(ctx context.Context, userID string, t notification.Type) (bool, error) {
	// COALESCE over an aggregate always yields a row.
	var enabled bool
	err := GetQuerier(ctx, r.db).QueryRow(ctx, `
		SELECT COALESCE(bool_and(push_enabled), TRUE)
		FROM notification_preferences
		WHERE user_id = $1 AND type = $2`, userID, string(t),
	).Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("check push preference: %w", err)
	}
	return enabled, nil
}

func scanNotification(row pgx.CollectableRow) (notification.Notification, error) {
	var n notification.Notification
	var t string
	var data []byte
	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &n.RequestID, &t,
		&n.Title, &n.Message, &data, &n.ReadAt, &n.CreatedAt,
	); err != nil {
		return n, err
	}
	n.Type = notification.Type(t)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return n, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	return n, nil
}
