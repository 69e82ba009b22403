package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linksight/linksight/internal/processing/links"
)

const uniqueViolation = "23505"

const linksSchema = `
CREATE TABLE IF NOT EXISTS links (
	id           BIGSERIAL PRIMARY KEY,
	short_code   TEXT NOT NULL UNIQUE,
	original_url TEXT NOT NULL,
	custom_code  BOOLEAN NOT NULL DEFAULT FALSE,
	tags         TEXT[] NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS links_created_at_desc ON links (created_at DESC);
`

type LinksRepository struct {
	pool *pgxpool.Pool
}

func NewLinksRepository(pool *pgxpool.Pool) (*LinksRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, linksSchema); err != nil {
		return nil, err
	}

	return &LinksRepository{pool: pool}, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO links (short_code, original_url, custom_code, tags, created_at, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		link.ShortCode,
		link.OriginalURL,
		link.CustomCode,
		link.Tags,
		link.CreatedAt.UTC(),
		link.ExpiresAt,
		link.IsActive,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return links.ErrCodeTaken
		}
		return err
	}

	link.ID = strconv.FormatInt(id, 10)
	return nil
}

const linkColumns = `id, short_code, original_url, custom_code, tags, created_at, expires_at, is_active`

func (r *LinksRepository) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE short_code = $1`,
		code,
	)
	return scanLink(row)
}

func (r *LinksRepository) FindActiveByCode(ctx context.Context, code string, at time.Time) (*links.Link, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE short_code = $1
		   AND is_active
		   AND (expires_at IS NULL OR expires_at > $2)`,
		code, at.UTC(),
	)
	return scanLink(row)
}

func (r *LinksRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	numeric, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE links SET is_active = FALSE WHERE id = $1 AND is_active`,
		numeric,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LinksRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`,
		code,
	).Scan(&exists)
	return exists, err
}

func (r *LinksRepository) ListActive(ctx context.Context) ([]links.Link, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM links WHERE is_active ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLinks(rows)
}

func (r *LinksRepository) ListActiveByTag(ctx context.Context, tag string) ([]links.Link, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE is_active
		   AND EXISTS (SELECT 1 FROM unnest(tags) t WHERE lower(t) = lower($1))
		 ORDER BY created_at DESC`,
		tag,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLinks(rows)
}

func (r *LinksRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM links WHERE is_active`).Scan(&count)
	return count, err
}

func (r *LinksRepository) RecentCreated(ctx context.Context, limit int) ([]links.Link, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE is_active
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLinks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*links.Link, error) {
	var (
		id        int64
		link      links.Link
		expiresAt *time.Time
	)
	err := row.Scan(
		&id,
		&link.ShortCode,
		&link.OriginalURL,
		&link.CustomCode,
		&link.Tags,
		&link.CreatedAt,
		&expiresAt,
		&link.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, links.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	link.ID = strconv.FormatInt(id, 10)
	link.ExpiresAt = expiresAt
	return &link, nil
}

func collectLinks(rows pgx.Rows) ([]links.Link, error) {
	out := []links.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
