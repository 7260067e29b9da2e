package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuslabs/nimbus/internal/log"
)

// Store persists sessions and messages in PostgreSQL with TTL semantics.
//
// Reads filter on expires_at and never refresh activity. Writes refresh
// last_activity and push expires_at forward by the configured TTL.
type Store struct {
	pool       *pgxpool.Pool
	ttl        time.Duration
	maxHistory int
	logger     log.Logger
}

// Config holds store tuning parameters.
type Config struct {
	// TTL is the sliding idle expiry applied on every write.
	TTL time.Duration
	// MaxHistory caps stored messages per session; oldest are evicted.
	MaxHistory int
}

// NewStore creates a session store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, cfg Config, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:       pool,
		ttl:        cfg.TTL,
		maxHistory: cfg.MaxHistory,
		logger:     logger,
	}
}

// ttlSeconds returns the TTL as whole seconds for make_interval.
func (s *Store) ttlSeconds() int64 {
	return int64(s.ttl / time.Second)
}

// Create inserts a new session. When id is uuid.Nil a random ID is
// generated. An existing live session with the same ID is an error.
func (s *Store) Create(ctx context.Context, id uuid.UUID) (*Session, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	// Sweep an expired row with the same ID so the insert can succeed.
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND expires_at <= now()`, id); err != nil {
		return nil, fmt.Errorf("failed to sweep expired session: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		RETURNING id, created_at, last_activity, expires_at, message_count, preferred_city, preferences`,
		id, s.ttlSeconds())

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("session created", "session_id", sess.ID)
	return sess, nil
}

// Get returns a live session by ID. Expired or absent sessions return
// ErrNotFound. Get does not refresh activity.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, created_at, last_activity, expires_at, message_count, preferred_city, preferences
		FROM sessions
		WHERE id = $1 AND expires_at > now()`,
		id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// FindOrCreate returns the live session with the given ID, transparently
// recreating it when absent or expired. A recreated session starts empty.
func (s *Store) FindOrCreate(ctx context.Context, id uuid.UUID) (*Session, error) {
	if id == uuid.Nil {
		return s.Create(ctx, uuid.Nil)
	}

	sess, err := s.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.Create(ctx, id)
}

// History returns the session's messages ordered by sequence number.
// It does not refresh activity. Expired sessions return ErrNotFound.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, metadata, sequence_number, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY sequence_number ASC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return messages, nil
}

// AppendMessages appends messages to a session in a single transaction,
// evicts the oldest messages beyond the history cap, and refreshes the
// session's activity and expiry. Only Role and Content (and optional
// Metadata) of the input messages are used; sequence numbers and IDs are
// assigned by the store.
func (s *Store) AppendMessages(ctx context.Context, id uuid.UUID, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock serializes concurrent appends to the same session so
	// sequence numbers stay unique.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 AND expires_at > now() FOR UPDATE`,
		id).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock session: %w", err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM session_messages WHERE session_id = $1`,
		id).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("failed to read sequence number: %w", err)
	}

	for i, msg := range messages {
		var metadata []byte
		if msg.Metadata != nil {
			metadata, err = json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal message metadata: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_messages (session_id, role, content, metadata, sequence_number)
			VALUES ($1, $2, $3, $4, $5)`,
			id, msg.Role, msg.Content, metadata, maxSeq+i+1)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	// Evict oldest beyond the cap. Sequence numbers are monotonic, so
	// everything at or below the cutoff is older than the newest
	// maxHistory messages.
	newMaxSeq := maxSeq + len(messages)
	if cutoff := newMaxSeq - s.maxHistory; cutoff > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM session_messages WHERE session_id = $1 AND sequence_number <= $2`,
			id, cutoff)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = $1`,
		id).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET message_count = $2,
		    last_activity = now(),
		    expires_at    = now() + make_interval(secs => $3)
		WHERE id = $1`,
		id, count, s.ttlSeconds())
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("messages appended",
		"session_id", id,
		"appended", len(messages),
		"stored", count)
	return nil
}

// UpdatePreferences merges preference keys into the session and
// optionally sets the preferred city. A nil city leaves the existing
// value untouched; an empty string clears it. Refreshes activity.
func (s *Store) UpdatePreferences(ctx context.Context, id uuid.UUID, city *string, prefs map[string]any) (*Session, error) {
	if prefs == nil {
		prefs = map[string]any{}
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preferences: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET preferred_city = CASE
		        WHEN $2::text IS NULL THEN preferred_city
		        WHEN $2::text = ''   THEN NULL
		        ELSE $2::text
		    END,
		    preferences   = preferences || $3::jsonb,
		    last_activity = now(),
		    expires_at    = now() + make_interval(secs => $4)
		WHERE id = $1 AND expires_at > now()
		RETURNING id, created_at, last_activity, expires_at, message_count, preferred_city, preferences`,
		id, city, prefsJSON, s.ttlSeconds())

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return sess, nil
}

// SetPreferredCityIfUnset records an inferred city without overriding an
// explicit preference. Returns true when the city was recorded. A miss
// on an expired or absent session is not an error: inference is best
// effort.
func (s *Store) SetPreferredCityIfUnset(ctx context.Context, id uuid.UUID, city string) (bool, error) {
	if city == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET preferred_city = $2
		WHERE id = $1 AND expires_at > now() AND preferred_city IS NULL`,
		id, city)
	if err != nil {
		return false, fmt.Errorf("failed to set preferred city: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a session and its messages. Deleting an absent or
// expired session returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND expires_at > now()`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("session deleted", "session_id", id)
	return nil
}

// scanSession scans a sessions row into a Session.
func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		city      *string
		prefsJSON []byte
	)
	err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt,
		&sess.MessageCount, &city, &prefsJSON)
	if err != nil {
		return nil, err
	}
	if city != nil {
		sess.PreferredCity = *city
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &sess.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}
	return &sess, nil
}

// scanMessage scans a session_messages row into a Message.
func scanMessage(row pgx.Row) (*Message, error) {
	var (
		msg      Message
		metadata []byte
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
		&metadata, &msg.SequenceNumber, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
		}
	}
	return &msg, nil
}
