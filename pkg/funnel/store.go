package funnel

import "context"

// Store persists funnel sessions and abandonment records.
type Store interface {
	// GetSession returns the session, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// SaveSession upserts the session. Implementations must not let a later
	// write clear an already-set terminal timestamp.
	SaveSession(ctx context.Context, session *Session) error

	// SaveAbandonment upserts the abandonment record for its session,
	// replacing any prior record (last signal wins).
	SaveAbandonment(ctx context.Context, rec *Abandonment) error

	// GetAbandonment returns the abandonment record for the session, or
	// ErrSessionNotFound.
	GetAbandonment(ctx context.Context, sessionID string) (*Abandonment, error)

	// ListSessions returns all stored sessions for read-side metrics.
	ListSessions(ctx context.Context) ([]*Session, error)
}
