package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linksight/linksight/internal/processing/links"
)

const foreignKeyViolation = "23503"

const visitsSchema = `
CREATE TABLE IF NOT EXISTS visits (
	id          BIGSERIAL PRIMARY KEY,
	url_id      BIGINT NOT NULL REFERENCES links (id),
	ip_hash     TEXT NOT NULL,
	user_agent  TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL,
	referrer    TEXT NOT NULL DEFAULT '',
	ts          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS visits_url_ts_desc ON visits (url_id, ts DESC);
CREATE INDEX IF NOT EXISTS visits_ts_desc ON visits (ts DESC);
`

type VisitsRepository struct {
	pool *pgxpool.Pool
}

func NewVisitsRepository(pool *pgxpool.Pool) (*VisitsRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, visitsSchema); err != nil {
		return nil, err
	}

	return &VisitsRepository{pool: pool}, nil
}

func (r *VisitsRepository) Insert(ctx context.Context, visit *links.Visit) error {
	urlID, err := strconv.ParseInt(visit.URLID, 10, 64)
	if err != nil {
		return links.ErrNotFound
	}

	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now().UTC()
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO visits (url_id, ip_hash, user_agent, device_type, referrer, ts)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		urlID,
		visit.IPHash,
		visit.UserAgent,
		visit.DeviceType,
		visit.Referrer,
		visit.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return links.ErrNotFound
		}
		return err
	}

	visit.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *VisitsRepository) StatsByLink(ctx context.Context, linkID string) (links.VisitStats, error) {
	urlID, err := strconv.ParseInt(linkID, 10, 64)
	if err != nil {
		return links.VisitStats{}, links.ErrNotFound
	}

	var stats links.VisitStats
	err = r.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT ip_hash) FROM visits WHERE url_id = $1`,
		urlID,
	).Scan(&stats.TotalVisits, &stats.UniqueVisitors)
	return stats, err
}

func (r *VisitsRepository) GlobalStats(ctx context.Context) (links.VisitStats, error) {
	var stats links.VisitStats
	err := r.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT ip_hash) FROM visits`,
	).Scan(&stats.TotalVisits, &stats.UniqueVisitors)
	return stats, err
}

func (r *VisitsRepository) CountByDevice(ctx context.Context, linkID string) (map[string]int64, error) {
	urlID, err := strconv.ParseInt(linkID, 10, 64)
	if err != nil {
		return nil, links.ErrNotFound
	}

	rows, err := r.pool.Query(ctx,
		`SELECT device_type, count(*) FROM visits WHERE url_id = $1 GROUP BY device_type`,
		urlID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			device string
			count  int64
		)
		if err := rows.Scan(&device, &count); err != nil {
			return nil, err
		}
		out[device] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitsRepository) TopReferrers(ctx context.Context, linkID string, limit int) ([]links.ReferrerCount, error) {
	urlID, err := strconv.ParseInt(linkID, 10, 64)
	if err != nil {
		return nil, links.ErrNotFound
	}

	rows, err := r.pool.Query(ctx,
		`SELECT referrer, count(*) AS n
		 FROM visits
		 WHERE url_id = $1
		 GROUP BY referrer
		 ORDER BY n DESC, referrer ASC
		 LIMIT $2`,
		urlID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []links.ReferrerCount{}
	for rows.Next() {
		var row links.ReferrerCount
		if err := rows.Scan(&row.Referrer, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitsRepository) CountByDay(ctx context.Context, linkID string, since time.Time) ([]links.TimeSeriesPoint, error) {
	urlID, err := strconv.ParseInt(linkID, 10, 64)
	if err != nil {
		return nil, links.ErrNotFound
	}

	rows, err := r.pool.Query(ctx,
		`SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		 FROM visits
		 WHERE url_id = $1 AND ts >= $2
		 GROUP BY day
		 ORDER BY day ASC`,
		urlID, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []links.TimeSeriesPoint{}
	for rows.Next() {
		var point links.TimeSeriesPoint
		if err := rows.Scan(&point.Date, &point.Visits); err != nil {
			return nil, err
		}
		out = append(out, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitsRepository) RecentByLink(ctx context.Context, linkID string, limit int) ([]links.Visit, error) {
	urlID, err := strconv.ParseInt(linkID, 10, 64)
	if err != nil {
		return nil, links.ErrNotFound
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, url_id, ip_hash, user_agent, device_type, referrer, ts
		 FROM visits
		 WHERE url_id = $1
		 ORDER BY ts DESC
		 LIMIT $2`,
		urlID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []links.Visit{}
	for rows.Next() {
		var (
			id    int64
			urlID int64
			visit links.Visit
		)
		if err := rows.Scan(&id, &urlID, &visit.IPHash, &visit.UserAgent, &visit.DeviceType, &visit.Referrer, &visit.Timestamp); err != nil {
			return nil, err
		}
		visit.ID = strconv.FormatInt(id, 10)
		visit.URLID = strconv.FormatInt(urlID, 10)
		out = append(out, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitsRepository) RecentClicks(ctx context.Context, limit int) ([]links.ClickEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.short_code, v.referrer, v.ts
		 FROM visits v
		 JOIN links l ON l.id = v.url_id
		 ORDER BY v.ts DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []links.ClickEvent{}
	for rows.Next() {
		var event links.ClickEvent
		if err := rows.Scan(&event.ShortCode, &event.Referrer, &event.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
