package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(db *sql.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) DB() *sql.DB {
	return s.db
}

func (s *RoomStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, creator_id, creator_email, created_at, updated_at
		FROM rooms WHERE id=$1
	`, roomID).Scan(&room.ID, &room.Title, &room.CreatorID, &room.CreatorEmail, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// CreateRoom inserts the room and its creator's access entry in one
// transaction so a room can never exist without its creator in the map.
func (s *RoomStore) CreateRoom(ctx context.Context, room Room, creatorCaps []string) (Room, error) {
	encodedCaps, err := json.Marshal(creatorCaps)
	if err != nil {
		return Room{}, fmt.Errorf("encode creator capabilities: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, fmt.Errorf("begin create room tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO rooms (id, title, creator_id, creator_email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, creator_id, creator_email, created_at, updated_at
	`, room.ID, room.Title, room.CreatorID, room.CreatorEmail).Scan(
		&room.ID, &room.Title, &room.CreatorID, &room.CreatorEmail, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_access (room_id, email, capabilities)
		VALUES ($1, $2, $3::jsonb)
	`, room.ID, room.CreatorEmail, string(encodedCaps)); err != nil {
		return Room{}, fmt.Errorf("insert creator access: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("commit create room tx: %w", err)
	}
	return room, nil
}

func (s *RoomStore) UpdateRoomTitle(ctx context.Context, roomID, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET title=$2, updated_at=NOW() WHERE id=$1
	`, roomID, title)
	if err != nil {
		return fmt.Errorf("update room title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room title affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAccessEntries returns a room's access map ordered by invitation time,
// which keeps collaborator resolution stable across calls.
func (s *RoomStore) ListAccessEntries(ctx context.Context, roomID string) ([]AccessEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, email, capabilities::text, created_at, updated_at
		FROM room_access
		WHERE room_id=$1
		ORDER BY created_at, email
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list access entries: %w", err)
	}
	defer rows.Close()

	var entries []AccessEntry
	for rows.Next() {
		entry, err := scanAccessEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *RoomStore) GetAccessEntry(ctx context.Context, roomID, email string) (AccessEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT room_id, email, capabilities::text, created_at, updated_at
		FROM room_access
		WHERE room_id=$1 AND email=$2
	`, roomID, email)
	return scanAccessEntry(row)
}

func (s *RoomStore) UpsertAccessEntry(ctx context.Context, roomID, email string, capabilities []string) error {
	encoded, err := json.Marshal(capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO room_access (room_id, email, capabilities)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (room_id, email) DO UPDATE SET capabilities=EXCLUDED.capabilities, updated_at=NOW()
	`, roomID, email, string(encoded))
	if err != nil {
		return fmt.Errorf("upsert access entry: %w", err)
	}
	return nil
}

// DeleteAccessEntry removes one grant. Deleting an absent entry is not an
// error so revocation stays idempotent.
func (s *RoomStore) DeleteAccessEntry(ctx context.Context, roomID, email string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM room_access WHERE room_id=$1 AND email=$2
	`, roomID, email)
	if err != nil {
		return fmt.Errorf("delete access entry: %w", err)
	}
	return nil
}

func (s *RoomStore) ListRoomsForEmail(ctx context.Context, email string) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.creator_id, r.creator_email, r.created_at, r.updated_at
		FROM rooms r
		JOIN room_access ra ON ra.room_id = r.id
		WHERE ra.email=$1
		ORDER BY r.updated_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list rooms for email: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Title, &room.CreatorID, &room.CreatorEmail, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccessEntry(row rowScanner) (AccessEntry, error) {
	var entry AccessEntry
	var capsRaw string
	err := row.Scan(&entry.RoomID, &entry.Email, &capsRaw, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessEntry{}, err
	}
	if err != nil {
		return AccessEntry{}, fmt.Errorf("scan access entry: %w", err)
	}
	if err := json.Unmarshal([]byte(capsRaw), &entry.Capabilities); err != nil {
		return AccessEntry{}, fmt.Errorf("decode capabilities for %s: %w", entry.Email, err)
	}
	return entry, nil
}
