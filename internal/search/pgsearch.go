package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgSearch implements Searcher with a plain ILIKE title match against
// Postgres. It is the fallback when Meilisearch is down.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true. If Postgres is down, the whole service is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search matches room titles case-insensitively, restricted to rooms the
// actor is a member of.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + escapeLike(q.Text) + "%"

	var total int
	err := p.db.QueryRow(`
		SELECT COUNT(*)
		FROM rooms r
		JOIN room_access ra ON ra.room_id = r.id
		WHERE ra.email = $1 AND r.title ILIKE $2
	`, q.ActorEmail, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count room matches: %w", err)
	}

	rows, err := p.db.Query(`
		SELECT r.id, r.title, r.creator_id
		FROM rooms r
		JOIN room_access ra ON ra.room_id = r.id
		WHERE ra.email = $1 AND r.title ILIKE $2
		ORDER BY r.updated_at DESC
		LIMIT $3 OFFSET $4
	`, q.ActorEmail, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search rooms: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.CreatorID); err != nil {
			return nil, 0, fmt.Errorf("scan room match: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every room with its member emails, for reindexing
// into Meilisearch after it recovers or starts empty.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]RoomRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.creator_id,
			COALESCE(jsonb_agg(ra.email ORDER BY ra.created_at) FILTER (WHERE ra.email IS NOT NULL), '[]'::jsonb)
		FROM rooms r
		LEFT JOIN room_access ra ON ra.room_id = r.id
		GROUP BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load room records: %w", err)
	}
	defer rows.Close()

	var records []RoomRecord
	for rows.Next() {
		var record RoomRecord
		var membersRaw []byte
		if err := rows.Scan(&record.ID, &record.Title, &record.CreatorID, &membersRaw); err != nil {
			return nil, fmt.Errorf("scan room record: %w", err)
		}
		if err := json.Unmarshal(membersRaw, &record.MemberEmails); err != nil {
			return nil, fmt.Errorf("decode member emails for %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
