package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailpulse/internal/constants"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
)

// SQLStore keeps records in the subscriptions table. The same queries run
// on SQLite and PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db     *sqlx.DB
	engine string
}

func NewSQLiteStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, engine: constants.StoreSQLite}
}

func NewPostgresStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, engine: constants.StorePostgres}
}

const selectRecord = `
	SELECT id, resource, client_state, notification_url, change_type, status,
	       expires_at, created_at, updated_at, last_error
	FROM subscriptions`

func (s *SQLStore) Load(ctx context.Context, resource string) (*Record, error) {
	start := time.Now()

	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(selectRecord+" WHERE resource = ?"), resource)
	s.observe("load", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.WithDetail("resource", resource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	normalize(&rec)
	return &rec, nil
}

func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	start := time.Now()

	query := `
		INSERT INTO subscriptions (
			id, resource, client_state, notification_url, change_type, status,
			expires_at, created_at, updated_at, last_error
		) VALUES (
			:id, :resource, :client_state, :notification_url, :change_type, :status,
			:expires_at, :created_at, :updated_at, :last_error
		)
		ON CONFLICT (resource) DO UPDATE SET
			id = excluded.id,
			client_state = excluded.client_state,
			notification_url = excluded.notification_url,
			change_type = excluded.change_type,
			status = excluded.status,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at,
			last_error = excluded.last_error
	`

	row := *rec
	row.ExpiresAt = row.ExpiresAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, query, &row)
	s.observe("save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, resource string) error {
	start := time.Now()

	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM subscriptions WHERE resource = ?"), resource)
	s.observe("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	start := time.Now()

	var records []Record
	err := s.db.SelectContext(ctx, &records, selectRecord+" ORDER BY updated_at DESC")
	s.observe("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for i := range records {
		normalize(&records[i])
	}
	return records, nil
}

func (s *SQLStore) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, s.engine, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, s.engine, operation, time.Since(start))
}

func normalize(rec *Record) {
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
}
