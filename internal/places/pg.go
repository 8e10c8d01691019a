package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jpvelasco/placedrop/internal/model"
)

// notifyChannel is the Postgres NOTIFY channel raised by the places trigger.
const notifyChannel = "places_changed"

// PGStore is the production Repository over Postgres. Realtime push rides on
// LISTEN/NOTIFY: a trigger fires on every collection change (including
// changes issued by other writers), the listener re-reads the collection and
// broadcasts the snapshot.
type PGStore struct {
	pool   *pgxpool.Pool
	events *hub
	log    zerolog.Logger
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool, log zerolog.Logger) *PGStore {
	return &PGStore{
		pool:   pool,
		events: newHub(),
		log:    log.With().Str("component", "places").Logger(),
	}
}

// Listen runs the notification loop until the context is cancelled. Must be
// started (usually in a goroutine from main) before snapshots can flow to
// subscribers.
func (s *PGStore) Listen(ctx context.Context) {
	for {
		if err := s.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("listener interrupted, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *PGStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		snapshot, err := s.All(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("reload snapshot after notify")
			continue
		}
		s.events.broadcast(snapshot)
	}
}

// Create validates and inserts a place. The insert trigger raises the
// notification, so subscribers see the new id in the next snapshot.
func (s *PGStore) Create(ctx context.Context, draft Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO places (name, description, latitude, longitude, media_url, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
		RETURNING id
	`, draft.Name, draft.Description, draft.Latitude, draft.Longitude, draft.MediaURL, time.Now().UTC()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert place: %w", err)
	}
	return id, nil
}

// All returns the collection in arrival order. Rows with non-finite or
// out-of-range coordinates are logged and skipped rather than handed to
// callers.
func (s *PGStore) All(ctx context.Context) ([]model.Place, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, latitude, longitude, address, media_url, created_at
		FROM places ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("select places: %w", err)
	}
	defer rows.Close()

	out := make([]model.Place, 0)
	for rows.Next() {
		var (
			p        model.Place
			address  sql.NullString
			mediaURL sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Latitude, &p.Longitude, &address, &mediaURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		if !validCoordinate(p.Latitude, 90) || !validCoordinate(p.Longitude, 180) {
			s.log.Warn().Str("id", p.ID).Msg("skipping place with malformed coordinates")
			continue
		}
		p.Address = address.String
		p.MediaURL = mediaURL.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return out, nil
}

// Get returns one place by id.
func (s *PGStore) Get(ctx context.Context, id string) (*model.Place, error) {
	var (
		p        model.Place
		address  sql.NullString
		mediaURL sql.NullString
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, latitude, longitude, address, media_url, created_at
		FROM places WHERE id=$1
	`, id)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Latitude, &p.Longitude, &address, &mediaURL, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select place: %w", err)
	}
	p.Address = address.String
	p.MediaURL = mediaURL.String
	return &p, nil
}

// Subscribe opens a live stream seeded with the current snapshot.
func (s *PGStore) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := s.events.add()
	snapshot, err := s.All(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.events.send(sub, snapshot)
	return sub, nil
}

// SetAddress records the enrichment worker's result. The update trigger
// pushes the change to subscribers.
func (s *PGStore) SetAddress(ctx context.Context, id, address string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE places SET address=$1 WHERE id=$2`, address, id)
	if err != nil {
		return fmt.Errorf("update place address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
