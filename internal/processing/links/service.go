package links

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	maxCodeAttempts    = 10
	topReferrersLimit  = 5
	timeSeriesWindow   = 30 * 24 * time.Hour
	recentClicksLimit  = 10
	recentCreatesLimit = 5
	activityFeedLimit  = 10
)

// Service implements link lifecycle and analytics assembly on top of the
// storage ports. It is safe for concurrent use.
type Service struct {
	linkRepo   LinkRepository
	visitRepo  VisitRepository
	generator  CodeGenerator
	codeLength int
	now        func() time.Time
}

func NewService(linkRepo LinkRepository, visitRepo VisitRepository, generator CodeGenerator, codeLength int) *Service {
	return &Service{
		linkRepo:   linkRepo,
		visitRepo:  visitRepo,
		generator:  generator,
		codeLength: codeLength,
		now:        time.Now,
	}
}

// CreateLink registers a new short link. A custom code is claimed exactly
// once; a generated code is retried on collision up to maxCodeAttempts.
func (s *Service) CreateLink(ctx context.Context, input CreateLinkInput) (*Link, error) {
	normalized, err := validateAndNormalizeURL(input.OriginalURL)
	if err != nil {
		return nil, err
	}

	link := &Link{
		OriginalURL: normalized,
		Tags:        NormalizeTags(input.Tags),
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   input.ExpiresAt,
		IsActive:    true,
	}

	if input.CustomCode != "" {
		if !ValidateCustomCode(input.CustomCode) {
			return nil, ErrInvalidCode
		}
		// Availability spans all rows, soft-deleted included; the unique
		// index still backstops concurrent claims.
		taken, err := s.linkRepo.CodeExists(ctx, input.CustomCode)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrCodeTaken
		}
		link.ShortCode = input.CustomCode
		link.CustomCode = true
		if err := s.linkRepo.Insert(ctx, link); err != nil {
			return nil, err
		}
		return link, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generator.Generate(s.codeLength)
		if err != nil {
			return nil, err
		}
		link.ShortCode = code
		err = s.linkRepo.Insert(ctx, link)
		if err == nil {
			return link, nil
		}
		if err != ErrCodeTaken {
			return nil, err
		}
	}

	return nil, ErrCodeExhausted
}

// Resolve returns the destination for a short code. Soft-deleted codes and
// unknown codes are indistinguishable to callers; expiry is only disclosed
// for links that are otherwise live.
func (s *Service) Resolve(ctx context.Context, code string) (*Link, error) {
	link, err := s.linkRepo.FindActiveByCode(ctx, code, s.now().UTC())
	if err == nil {
		return link, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	raw, rawErr := s.linkRepo.FindByCode(ctx, code)
	if rawErr != nil {
		return nil, ErrNotFound
	}
	if raw.IsActive && raw.Expired(s.now()) {
		return nil, ErrExpired
	}
	return nil, ErrNotFound
}

// Delete deactivates a link. The second return is false when the id did not
// match an active link, which callers may treat as already deleted.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.linkRepo.SoftDelete(ctx, id)
}

// ListLinks returns all active links newest-first, each decorated with its
// visit rollup and a handful of recent visits.
func (s *Service) ListLinks(ctx context.Context) ([]LinkWithStats, error) {
	active, err := s.linkRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, active)
}

// ListLinksByTag filters active links by tag, matched case-insensitively.
func (s *Service) ListLinksByTag(ctx context.Context, tag string) ([]LinkWithStats, error) {
	active, err := s.linkRepo.ListActiveByTag(ctx, strings.TrimSpace(tag))
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, active)
}

func (s *Service) decorate(ctx context.Context, linksList []Link) ([]LinkWithStats, error) {
	out := make([]LinkWithStats, 0, len(linksList))
	for i := range linksList {
		stats, err := s.visitRepo.StatsByLink(ctx, linksList[i].ID)
		if err != nil {
			return nil, err
		}
		recent, err := s.visitRepo.RecentByLink(ctx, linksList[i].ID, recentClicksLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, LinkWithStats{
			Link:           linksList[i],
			TotalVisits:    stats.TotalVisits,
			UniqueVisitors: stats.UniqueVisitors,
			RecentVisits:   recent,
		})
	}
	return out, nil
}

// Analytics assembles the per-link report. It resolves the code against all
// links including soft-deleted ones, so history outlives deletion.
func (s *Service) Analytics(ctx context.Context, code string) (*AnalyticsData, error) {
	link, err := s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	stats, err := s.visitRepo.StatsByLink(ctx, link.ID)
	if err != nil {
		return nil, err
	}

	devices, err := s.visitRepo.CountByDevice(ctx, link.ID)
	if err != nil {
		return nil, err
	}

	referrers, err := s.visitRepo.TopReferrers(ctx, link.ID, topReferrersLimit)
	if err != nil {
		return nil, err
	}

	since := dateOnly(s.now().UTC()).Add(-timeSeriesWindow)
	series, err := s.visitRepo.CountByDay(ctx, link.ID, since)
	if err != nil {
		return nil, err
	}
	if series == nil {
		series = []TimeSeriesPoint{}
	}

	tags := link.Tags
	if tags == nil {
		tags = []string{}
	}

	return &AnalyticsData{
		OriginalURL:    link.OriginalURL,
		ShortCode:      link.ShortCode,
		Tags:           tags,
		TotalVisits:    stats.TotalVisits,
		UniqueVisitors: stats.UniqueVisitors,
		DeviceStats: DeviceStats{
			Desktop: devices[DeviceDesktop],
			Mobile:  devices[DeviceMobile],
			Tablet:  devices[DeviceTablet],
		},
		TopReferrers:   labelReferrers(referrers, stats.TotalVisits),
		TimeSeriesData: series,
	}, nil
}

// OverallStats summarizes the whole deployment. TotalLinks counts active
// links only, while clicks and visitors cover the full ledger.
func (s *Service) OverallStats(ctx context.Context) (*OverallStats, error) {
	totalLinks, err := s.linkRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	global, err := s.visitRepo.GlobalStats(ctx)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if totalLinks > 0 {
		rate = round1(float64(global.TotalVisits) / float64(totalLinks))
	}

	return &OverallStats{
		TotalLinks:     totalLinks,
		TotalClicks:    global.TotalVisits,
		UniqueVisitors: global.UniqueVisitors,
		AvgClickRate:   rate,
	}, nil
}

// RecentActivity merges the latest clicks with the latest link creations
// into one newest-first feed capped at activityFeedLimit entries.
func (s *Service) RecentActivity(ctx context.Context) ([]ActivityEntry, error) {
	clicks, err := s.visitRepo.RecentClicks(ctx, recentClicksLimit)
	if err != nil {
		return nil, err
	}

	created, err := s.linkRepo.RecentCreated(ctx, recentCreatesLimit)
	if err != nil {
		return nil, err
	}

	feed := make([]ActivityEntry, 0, len(clicks)+len(created))
	for _, c := range clicks {
		feed = append(feed, ActivityEntry{
			Type:      ActivityClick,
			ShortCode: c.ShortCode,
			Referrer:  c.Referrer,
			Timestamp: c.Timestamp,
		})
	}
	for i := range created {
		feed = append(feed, ActivityEntry{
			Type:      ActivityCreate,
			ShortCode: created[i].ShortCode,
			Timestamp: created[i].CreatedAt,
		})
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Timestamp.After(feed[j].Timestamp)
	})

	if len(feed) > activityFeedLimit {
		feed = feed[:activityFeedLimit]
	}
	return feed, nil
}

// NormalizeTags splits comma-joined entries, trims whitespace, and drops
// empties. Order is preserved and duplicates are kept.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, part := range strings.Split(raw, ",") {
			t := strings.TrimSpace(part)
			if t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func validateAndNormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", ErrInvalidURL
	}

	u.Fragment = ""
	return u.String(), nil
}

func labelReferrers(rows []ReferrerCount, total int64) []ReferrerStats {
	out := make([]ReferrerStats, 0, len(rows))
	for _, row := range rows {
		label := row.Referrer
		if label == "" {
			label = DirectReferrer
		}
		pct := 0.0
		if total > 0 {
			pct = round1(float64(row.Count) / float64(total) * 100)
		}
		out = append(out, ReferrerStats{
			Referrer:   label,
			Count:      row.Count,
			Percentage: pct,
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
