package funnel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists funnel data in PostgreSQL. The upsert guards the
// stage and all three terminal timestamps in SQL: once any instance recorded
// a terminal state, a late save from another instance can neither clear it
// nor stamp a second terminal timestamp onto the row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `session_id, stage, landing_page, referrer, utm_source, utm_medium, utm_campaign,
	page_viewed_at, form_started_at, method_selected, form_submitted_at,
	completed_at, failed_at, abandoned_at, error_code, device_type, browser, updated_at`

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM signup_sessions WHERE session_id = $1`, sessionID)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("funnel: get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signup_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (session_id) DO UPDATE SET
			stage             = CASE WHEN signup_sessions.completed_at IS NOT NULL
			                           OR signup_sessions.failed_at IS NOT NULL
			                           OR signup_sessions.abandoned_at IS NOT NULL
			                         THEN signup_sessions.stage ELSE EXCLUDED.stage END,
			landing_page      = COALESCE(NULLIF(EXCLUDED.landing_page, ''), signup_sessions.landing_page),
			referrer          = COALESCE(NULLIF(EXCLUDED.referrer, ''), signup_sessions.referrer),
			utm_source        = COALESCE(NULLIF(EXCLUDED.utm_source, ''), signup_sessions.utm_source),
			utm_medium        = COALESCE(NULLIF(EXCLUDED.utm_medium, ''), signup_sessions.utm_medium),
			utm_campaign      = COALESCE(NULLIF(EXCLUDED.utm_campaign, ''), signup_sessions.utm_campaign),
			page_viewed_at    = COALESCE(signup_sessions.page_viewed_at, EXCLUDED.page_viewed_at),
			form_started_at   = COALESCE(signup_sessions.form_started_at, EXCLUDED.form_started_at),
			method_selected   = COALESCE(NULLIF(EXCLUDED.method_selected, ''), signup_sessions.method_selected),
			form_submitted_at = COALESCE(signup_sessions.form_submitted_at, EXCLUDED.form_submitted_at),
			completed_at      = CASE WHEN signup_sessions.completed_at IS NOT NULL
			                           OR signup_sessions.failed_at IS NOT NULL
			                           OR signup_sessions.abandoned_at IS NOT NULL
			                         THEN signup_sessions.completed_at ELSE EXCLUDED.completed_at END,
			failed_at         = CASE WHEN signup_sessions.completed_at IS NOT NULL
			                           OR signup_sessions.failed_at IS NOT NULL
			                           OR signup_sessions.abandoned_at IS NOT NULL
			                         THEN signup_sessions.failed_at ELSE EXCLUDED.failed_at END,
			abandoned_at      = CASE WHEN signup_sessions.completed_at IS NOT NULL
			                           OR signup_sessions.failed_at IS NOT NULL
			                           OR signup_sessions.abandoned_at IS NOT NULL
			                         THEN signup_sessions.abandoned_at ELSE EXCLUDED.abandoned_at END,
			error_code        = COALESCE(NULLIF(EXCLUDED.error_code, ''), signup_sessions.error_code),
			device_type       = COALESCE(NULLIF(EXCLUDED.device_type, ''), signup_sessions.device_type),
			browser           = COALESCE(NULLIF(EXCLUDED.browser, ''), signup_sessions.browser),
			updated_at        = GREATEST(signup_sessions.updated_at, EXCLUDED.updated_at)`,
		sess.SessionID, string(sess.Stage), sess.LandingPage, sess.Referrer,
		sess.UTMSource, sess.UTMMedium, sess.UTMCampaign,
		sess.PageViewedAt, sess.FormStartedAt, sess.MethodSelected, sess.FormSubmittedAt,
		sess.CompletedAt, sess.FailedAt, sess.AbandonedAt, sess.ErrorCode,
		sess.DeviceType, sess.Browser, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("funnel: save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAbandonment(ctx context.Context, rec *Abandonment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signup_abandonments
			(session_id, last_field, time_on_last_field_ms, total_time_ms, fields_touched, reason, error_context, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			last_field            = EXCLUDED.last_field,
			time_on_last_field_ms = EXCLUDED.time_on_last_field_ms,
			total_time_ms         = EXCLUDED.total_time_ms,
			fields_touched        = EXCLUDED.fields_touched,
			reason                = EXCLUDED.reason,
			error_context         = EXCLUDED.error_context,
			recorded_at           = EXCLUDED.recorded_at`,
		rec.SessionID, rec.LastField, rec.TimeOnLastFieldMs, rec.TotalTimeMs,
		rec.FieldsTouched, string(rec.Reason), rec.ErrorContext, rec.At,
	)
	if err != nil {
		return fmt.Errorf("funnel: save abandonment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAbandonment(ctx context.Context, sessionID string) (*Abandonment, error) {
	var (
		rec    Abandonment
		reason string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, last_field, time_on_last_field_ms, total_time_ms, fields_touched, reason, error_context, recorded_at
		FROM signup_abandonments WHERE session_id = $1`, sessionID,
	).Scan(&rec.SessionID, &rec.LastField, &rec.TimeOnLastFieldMs, &rec.TotalTimeMs,
		&rec.FieldsTouched, &reason, &rec.ErrorContext, &rec.At)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("funnel: get abandonment: %w", err)
	}
	rec.Reason = AbandonReason(reason)
	return &rec, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM signup_sessions`)
	if err != nil {
		return nil, fmt.Errorf("funnel: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("funnel: scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("funnel: list sessions: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess  Session
		stage string
	)
	err := row.Scan(&sess.SessionID, &stage, &sess.LandingPage, &sess.Referrer,
		&sess.UTMSource, &sess.UTMMedium, &sess.UTMCampaign,
		&sess.PageViewedAt, &sess.FormStartedAt, &sess.MethodSelected, &sess.FormSubmittedAt,
		&sess.CompletedAt, &sess.FailedAt, &sess.AbandonedAt, &sess.ErrorCode,
		&sess.DeviceType, &sess.Browser, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.Stage = Stage(stage)
	return &sess, nil
}

var _ Store = (*PostgresStore)(nil)
