package links

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("link not found")
	ErrExpired       = errors.New("link expired")
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidCode   = errors.New("invalid short code")
	ErrCodeTaken     = errors.New("short code taken")
	ErrCodeExhausted = errors.New("could not allocate an unused short code")
)

// LinkRepository owns Link lifecycle. Insert must enforce short-code
// uniqueness atomically (unique index, not check-then-act) and return
// ErrCodeTaken on a duplicate.
type LinkRepository interface {
	Insert(ctx context.Context, link *Link) error
	FindByCode(ctx context.Context, code string) (*Link, error)
	FindActiveByCode(ctx context.Context, code string, at time.Time) (*Link, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListActive(ctx context.Context) ([]Link, error)
	ListActiveByTag(ctx context.Context, tag string) ([]Link, error)
	CountActive(ctx context.Context) (int64, error)
	RecentCreated(ctx context.Context, limit int) ([]Link, error)
}

// VisitRepository owns the append-only visit ledger and its read-side
// aggregations. Aggregates are computed fresh per call; there are no
// materialized counters. linkID == "" means "across all links".
type VisitRepository interface {
	Insert(ctx context.Context, visit *Visit) error
	StatsByLink(ctx context.Context, linkID string) (VisitStats, error)
	GlobalStats(ctx context.Context) (VisitStats, error)
	CountByDevice(ctx context.Context, linkID string) (map[string]int64, error)
	TopReferrers(ctx context.Context, linkID string, limit int) ([]ReferrerCount, error)
	CountByDay(ctx context.Context, linkID string, since time.Time) ([]TimeSeriesPoint, error)
	RecentByLink(ctx context.Context, linkID string, limit int) ([]Visit, error)
	RecentClicks(ctx context.Context, limit int) ([]ClickEvent, error)
}

// CodeGenerator produces candidate short codes. It is stateless and
// oblivious to existing codes; the registry drives the retry loop.
type CodeGenerator interface {
	Generate(length int) (string, error)
}
