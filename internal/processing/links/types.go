package links

import "time"

// Device classes assigned at ingestion time. Re-classification never
// rewrites recorded visits.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// DirectReferrer is the label reported for visits without a referrer.
const DirectReferrer = "Direct"

// Link is a short-code to destination mapping. Deletion flips IsActive;
// rows are never removed so visit history stays queryable.
type Link struct {
	ID          string
	OriginalURL string
	ShortCode   string
	CustomCode  bool
	Tags        []string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	IsActive    bool
}

// Expired reports whether the link's expiry, if set, is at or before now.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.UTC().After(now.UTC())
}

// Visit is one append-only ledger entry. The ledger assigns ID and
// Timestamp at ingestion; entries are never updated or deleted.
type Visit struct {
	ID         string
	URLID      string
	IPHash     string
	UserAgent  string
	DeviceType string
	Referrer   string // empty means direct traffic
	Timestamp  time.Time
}

type CreateLinkInput struct {
	OriginalURL string
	CustomCode  string
	Tags        []string
	ExpiresAt   *time.Time
}

// VisitStats is the count pair common to per-link and global rollups.
type VisitStats struct {
	TotalVisits    int64
	UniqueVisitors int64
}

type DeviceStats struct {
	Desktop int64 `json:"desktop"`
	Mobile  int64 `json:"mobile"`
	Tablet  int64 `json:"tablet"`
}

type ReferrerStats struct {
	Referrer   string  `json:"referrer"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ReferrerCount is a raw group-by row before labeling and percentages.
type ReferrerCount struct {
	Referrer string
	Count    int64
}

// TimeSeriesPoint is one calendar-day bucket (UTC). Days with zero visits
// are omitted from series.
type TimeSeriesPoint struct {
	Date   string `json:"date"`
	Visits int64  `json:"visits"`
}

type AnalyticsData struct {
	OriginalURL    string            `json:"originalUrl"`
	ShortCode      string            `json:"shortCode"`
	Tags           []string          `json:"tags"`
	TotalVisits    int64             `json:"totalVisits"`
	UniqueVisitors int64             `json:"uniqueVisitors"`
	DeviceStats    DeviceStats       `json:"deviceStats"`
	TopReferrers   []ReferrerStats   `json:"topReferrers"`
	TimeSeriesData []TimeSeriesPoint `json:"timeSeriesData"`
}

type LinkWithStats struct {
	Link
	TotalVisits    int64
	UniqueVisitors int64
	RecentVisits   []Visit
}

type OverallStats struct {
	TotalLinks     int64   `json:"totalLinks"`
	TotalClicks    int64   `json:"totalClicks"`
	UniqueVisitors int64   `json:"uniqueVisitors"`
	AvgClickRate   float64 `json:"avgClickRate"`
}

const (
	ActivityClick  = "click"
	ActivityCreate = "create"
)

// ActivityEntry is one row of the merged recent-activity feed.
type ActivityEntry struct {
	Type      string    `json:"type"`
	ShortCode string    `json:"shortCode"`
	Referrer  string    `json:"referrer,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClickEvent is a recent visit joined with its link's short code, as
// sourced for the activity feed.
type ClickEvent struct {
	ShortCode string
	Referrer  string
	Timestamp time.Time
}
