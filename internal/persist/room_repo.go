package persist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type RoomAliasRow struct {
	Name       string
	RoomID     int
	Source     string
	ResolvedAt time.Time
}

// RoomRepo caches room name lookups.
type RoomRepo struct {
	db *DB
}

func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func roomKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Load returns the cached entry for name, or nil if there is none.
func (r *RoomRepo) Load(ctx context.Context, name string) (*RoomAliasRow, error) {
	row := &RoomAliasRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, room_id, source, resolved_at
		 FROM room_alias WHERE name = $1`, roomKey(name),
	).Scan(&row.Name, &row.RoomID, &row.Source, &row.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Save inserts or refreshes the entry for name.
func (r *RoomRepo) Save(ctx context.Context, name string, roomID int, source string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO room_alias (name, room_id, source, resolved_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (name) DO UPDATE
		 SET room_id = EXCLUDED.room_id, source = EXCLUDED.source, resolved_at = NOW()`,
		roomKey(name), roomID, source,
	)
	return err
}

func (r *RoomRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM room_alias WHERE name = $1`, roomKey(name))
	return err
}

// PurgeOlderThan drops entries resolved before cutoff and returns how many
// were removed.
func (r *RoomRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM room_alias WHERE resolved_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns every cached entry ordered by name.
func (r *RoomRepo) List(ctx context.Context) ([]RoomAliasRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, room_id, source, resolved_at FROM room_alias ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoomAliasRow, error) {
		var e RoomAliasRow
		err := row.Scan(&e.Name, &e.RoomID, &e.Source, &e.ResolvedAt)
		return e, err
	})
}
