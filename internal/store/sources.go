package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

const sourceColumns = `id, name, address, multi_page, page_limit, active, last_fetched_at`

// SourceID derives a stable id from a source address so re-seeding the
// same address always yields the same id.
func SourceID(address string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(address)).String()
}

func scanSource(r rowScanner) (model.Source, error) {
	var (
		src         model.Source
		multi, act  int
		lastFetched sql.NullString
	)
	if err := r.Scan(&src.ID, &src.Name, &src.Address, &multi, &src.PageLimit, &act, &lastFetched); err != nil {
		return model.Source{}, err
	}
	src.MultiPage = multi != 0
	src.Active = act != 0
	t, err := parseTimePtr(lastFetched)
	if err != nil {
		return model.Source{}, err
	}
	src.LastFetchedAt = t
	return src, nil
}

func (s *SQLStore) listSources(ctx context.Context, where string, args ...any) ([]model.Source, error) {
	rows, err := s.query(ctx, `SELECT `+sourceColumns+` FROM sources `+where+` ORDER BY name, address`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetActiveSources returns sources with the active flag set.
func (s *SQLStore) GetActiveSources(ctx context.Context) ([]model.Source, error) {
	return s.listSources(ctx, `WHERE active = 1`)
}

// ListSources returns every source, active or not.
func (s *SQLStore) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.listSources(ctx, ``)
}

// GetSource returns the source with the given id or model.ErrNotFound.
func (s *SQLStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	src, err := scanSource(s.queryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting source %s: %w", id, err)
	}
	return &src, nil
}

// TouchSource records a successful fetch.
func (s *SQLStore) TouchSource(ctx context.Context, id string, fetchedAt time.Time) error {
	_, err := s.exec(ctx, `UPDATE sources SET last_fetched_at = ? WHERE id = ?`, formatTime(fetchedAt), id)
	if err != nil {
		return fmt.Errorf("touching source %s: %w", id, err)
	}
	return nil
}

// UpsertSource inserts a source or updates the one with the same address.
// The stored id is written back to src.
func (s *SQLStore) UpsertSource(ctx context.Context, src *model.Source) error {
	if src.ID == "" {
		src.ID = SourceID(src.Address)
	}
	err := s.queryRow(ctx, `
		INSERT INTO sources (id, name, address, multi_page, page_limit, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			name = excluded.name,
			multi_page = excluded.multi_page,
			page_limit = excluded.page_limit,
			active = excluded.active
		RETURNING id`,
		src.ID, src.Name, src.Address, boolInt(src.MultiPage), src.PageLimit, boolInt(src.Active), formatTime(time.Now()),
	).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("upserting source %s: %w", src.Address, err)
	}
	return nil
}
