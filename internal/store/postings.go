package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

const postingColumns = `id, source_id, company, dedup_key, title, location, job_type, experience_level,
	description, requirements, url, raw_payload, normalized_at, first_seen_at, last_seen_at, active`

func scanPosting(r rowScanner) (*model.Posting, error) {
	var (
		p                                      model.Posting
		location, jobType, level, desc, reqs   sql.NullString
		raw, normalizedAt, firstSeen, lastSeen string
		active                                 int
	)
	err := r.Scan(&p.ID, &p.SourceID, &p.Company, &p.DedupKey, &p.Title,
		&location, &jobType, &level, &desc, &reqs,
		&p.URL, &raw, &normalizedAt, &firstSeen, &lastSeen, &active)
	if err != nil {
		return nil, err
	}

	p.Location = stringPtr(location)
	p.JobType = stringPtr(jobType)
	p.ExperienceLevel = stringPtr(level)
	p.Description = stringPtr(desc)
	p.Requirements = stringPtr(reqs)
	p.Active = active != 0

	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Raw); err != nil {
			return nil, fmt.Errorf("decoding raw payload of posting %s: %w", p.ID, err)
		}
	}
	if p.NormalizedAt, err = parseTime(normalizedAt); err != nil {
		return nil, err
	}
	if p.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if p.LastSeenAt, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPostingByKey returns the posting with the dedup key, or
// model.ErrNotFound.
func (s *SQLStore) GetPostingByKey(ctx context.Context, key string) (*model.Posting, error) {
	p, err := scanPosting(s.queryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE dedup_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting posting by key: %w", err)
	}
	return p, nil
}

// GetPosting returns the posting with the id, or model.ErrNotFound.
func (s *SQLStore) GetPosting(ctx context.Context, id string) (*model.Posting, error) {
	p, err := scanPosting(s.queryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting posting %s: %w", id, err)
	}
	return p, nil
}

// InsertPosting stores a new posting and assigns its id when empty. It
// returns model.ErrDuplicateKey when the dedup key already exists; the
// existing row is left untouched.
func (s *SQLStore) InsertPosting(ctx context.Context, p *model.Posting) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return fmt.Errorf("encoding raw payload: %w", err)
	}

	res, err := s.exec(ctx, `
		INSERT INTO postings (`+postingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING`,
		p.ID, p.SourceID, p.Company, p.DedupKey, p.Title,
		nullString(p.Location), nullString(p.JobType), nullString(p.ExperienceLevel),
		nullString(p.Description), nullString(p.Requirements),
		p.URL, string(raw),
		formatTime(p.NormalizedAt), formatTime(p.FirstSeenAt), formatTime(p.LastSeenAt),
		boolInt(p.Active),
	)
	if err != nil {
		return fmt.Errorf("inserting posting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting posting: %w", err)
	}
	if n == 0 {
		return model.ErrDuplicateKey
	}
	return nil
}

// TouchPosting refreshes last-seen and re-activates the posting. No other
// column changes.
func (s *SQLStore) TouchPosting(ctx context.Context, key string, seenAt time.Time) error {
	res, err := s.exec(ctx, `UPDATE postings SET last_seen_at = ?, active = 1 WHERE dedup_key = ?`, formatTime(seenAt), key)
	if err != nil {
		return fmt.Errorf("touching posting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching posting: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListPostings returns the most recently first-seen postings, newest first.
func (s *SQLStore) ListPostings(ctx context.Context, limit int) ([]model.Posting, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+postingColumns+` FROM postings ORDER BY first_seen_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing postings: %w", err)
	}
	defer rows.Close()

	var out []model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
