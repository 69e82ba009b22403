package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/processing/links"
	"github.com/linksight/linksight/internal/processing/visits"
)

type fakeLinkRepo struct {
	byCode map[string]*links.Link
	nextID int
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{byCode: map[string]*links.Link{}, nextID: 1}
}

func (f *fakeLinkRepo) Insert(ctx context.Context, link *links.Link) error {
	if _, ok := f.byCode[link.ShortCode]; ok {
		return links.ErrCodeTaken
	}
	link.ID = strings.Repeat("0", 23) + string(rune('0'+f.nextID))
	f.nextID++
	stored := *link
	f.byCode[link.ShortCode] = &stored
	return nil
}

func (f *fakeLinkRepo) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	link, ok := f.byCode[code]
	if !ok {
		return nil, links.ErrNotFound
	}
	out := *link
	return &out, nil
}

func (f *fakeLinkRepo) FindActiveByCode(ctx context.Context, code string, at time.Time) (*links.Link, error) {
	link, ok := f.byCode[code]
	if !ok || !link.IsActive || link.Expired(at) {
		return nil, links.ErrNotFound
	}
	out := *link
	return &out, nil
}

func (f *fakeLinkRepo) SoftDelete(ctx context.Context, id string) (bool, error) {
	for _, link := range f.byCode {
		if link.ID == id && link.IsActive {
			link.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLinkRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	_, ok := f.byCode[code]
	return ok, nil
}

func (f *fakeLinkRepo) ListActive(ctx context.Context) ([]links.Link, error) {
	out := []links.Link{}
	for _, link := range f.byCode {
		if link.IsActive {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) ListActiveByTag(ctx context.Context, tag string) ([]links.Link, error) {
	out := []links.Link{}
	for _, link := range f.byCode {
		if !link.IsActive {
			continue
		}
		for _, t := range link.Tags {
			if strings.EqualFold(t, tag) {
				out = append(out, *link)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	for _, link := range f.byCode {
		if link.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeLinkRepo) RecentCreated(ctx context.Context, limit int) ([]links.Link, error) {
	return f.ListActive(ctx)
}

type fakeVisitRepo struct {
	visits []links.Visit
}

func (f *fakeVisitRepo) Insert(ctx context.Context, visit *links.Visit) error {
	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now().UTC()
	}
	f.visits = append(f.visits, *visit)
	return nil
}

func (f *fakeVisitRepo) StatsByLink(ctx context.Context, linkID string) (links.VisitStats, error) {
	var stats links.VisitStats
	seen := map[string]bool{}
	for _, v := range f.visits {
		if v.URLID == linkID {
			stats.TotalVisits++
			if !seen[v.IPHash] {
				seen[v.IPHash] = true
				stats.UniqueVisitors++
			}
		}
	}
	return stats, nil
}

func (f *fakeVisitRepo) GlobalStats(ctx context.Context) (links.VisitStats, error) {
	var stats links.VisitStats
	seen := map[string]bool{}
	for _, v := range f.visits {
		stats.TotalVisits++
		if !seen[v.IPHash] {
			seen[v.IPHash] = true
			stats.UniqueVisitors++
		}
	}
	return stats, nil
}

func (f *fakeVisitRepo) CountByDevice(ctx context.Context, linkID string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, v := range f.visits {
		if v.URLID == linkID {
			out[v.DeviceType]++
		}
	}
	return out, nil
}

func (f *fakeVisitRepo) TopReferrers(ctx context.Context, linkID string, limit int) ([]links.ReferrerCount, error) {
	return nil, nil
}

func (f *fakeVisitRepo) CountByDay(ctx context.Context, linkID string, since time.Time) ([]links.TimeSeriesPoint, error) {
	return nil, nil
}

func (f *fakeVisitRepo) RecentByLink(ctx context.Context, linkID string, limit int) ([]links.Visit, error) {
	return nil, nil
}

func (f *fakeVisitRepo) RecentClicks(ctx context.Context, limit int) ([]links.ClickEvent, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "linksight-test"},
		Shortener: config.ShortenerConfig{
			BaseURL:        "http://sho.rt",
			CodeLength:     6,
			RedirectStatus: http.StatusFound,
		},
	}
}

type handlerFixture struct {
	handler   *LinksHandler
	linkRepo  *fakeLinkRepo
	visitRepo *fakeVisitRepo
	recorder  *visits.Recorder
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	linkRepo := newFakeLinkRepo()
	visitRepo := &fakeVisitRepo{}
	svc := links.NewService(linkRepo, visitRepo, links.NewCryptoCodeGenerator(), 6)
	recorder := visits.NewRecorder(visitRepo, 16, 1, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = recorder.Shutdown(ctx)
	})

	return &handlerFixture{
		handler:   NewLinksHandler(testConfig(), svc, recorder, visits.NewAnonymizer("test-salt")),
		linkRepo:  linkRepo,
		visitRepo: visitRepo,
		recorder:  recorder,
	}
}

func (f *handlerFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.recorder.Shutdown(ctx); err != nil {
		t.Fatalf("recorder drain failed: %v", err)
	}
}

func seedLink(f *handlerFixture, code string, expiresAt *time.Time, active bool) *links.Link {
	link := &links.Link{
		OriginalURL: "https://example.com/dest",
		ShortCode:   code,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}
	_ = f.linkRepo.Insert(context.Background(), link)
	if !active {
		f.linkRepo.byCode[code].IsActive = false
	}
	return link
}

func redirectRequest(code string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/"+code, nil)
	req.SetPathValue("code", code)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile")
	req.Header.Set("Referer", "https://news.example/post")
	req.RemoteAddr = "203.0.113.7:51234"
	return req
}

func TestRedirectActiveLink(t *testing.T) {
	f := newHandlerFixture(t)
	seedLink(f, "abc123", nil, true)

	rec := httptest.NewRecorder()
	f.handler.Redirect(rec, redirectRequest("abc123"))

	if rec.Code != http.StatusFound {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/dest" {
		t.Errorf("got Location %q", loc)
	}

	f.drain(t)
	if len(f.visitRepo.visits) != 1 {
		t.Fatalf("expected 1 recorded visit, got %d", len(f.visitRepo.visits))
	}
	visit := f.visitRepo.visits[0]
	if visit.DeviceType != links.DeviceMobile {
		t.Errorf("device = %q, want mobile", visit.DeviceType)
	}
	if visit.Referrer != "https://news.example/post" {
		t.Errorf("referrer = %q", visit.Referrer)
	}
	if len(visit.IPHash) != 16 || strings.Contains(visit.IPHash, "203.0.113.7") {
		t.Errorf("fingerprint %q should be a 16-char digest", visit.IPHash)
	}
}

func TestRedirectUnknownCode(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Redirect(rec, redirectRequest("missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusNotFound)
	}

	f.drain(t)
	if len(f.visitRepo.visits) != 0 {
		t.Errorf("404 must not record a visit, got %d", len(f.visitRepo.visits))
	}
}

func TestRedirectExpiredLink(t *testing.T) {
	f := newHandlerFixture(t)
	expired := time.Now().UTC().Add(-time.Hour)
	seedLink(f, "old123", &expired, true)

	rec := httptest.NewRecorder()
	f.handler.Redirect(rec, redirectRequest("old123"))

	if rec.Code != http.StatusGone {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusGone)
	}

	f.drain(t)
	if len(f.visitRepo.visits) != 0 {
		t.Errorf("410 must not record a visit, got %d", len(f.visitRepo.visits))
	}
}

func TestRedirectSoftDeletedLink(t *testing.T) {
	f := newHandlerFixture(t)
	seedLink(f, "gone12", nil, false)

	rec := httptest.NewRecorder()
	f.handler.Redirect(rec, redirectRequest("gone12"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("soft-deleted link: got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreateLink(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"url":"https://example.com/page","tags":["promo, launch"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	payload := rec.Body.String()
	if !strings.Contains(payload, `"code":"LINK_CREATED"`) {
		t.Errorf("missing success code in %s", payload)
	}
	if !strings.Contains(payload, `"shortUrl":"http://sho.rt/`) {
		t.Errorf("missing shortUrl in %s", payload)
	}
	if !strings.Contains(payload, `"tags":["promo","launch"]`) {
		t.Errorf("tags not normalized in %s", payload)
	}
}

func TestCreateLinkCustomCodeConflict(t *testing.T) {
	f := newHandlerFixture(t)
	seedLink(f, "my-promo", nil, true)

	body := `{"url":"https://example.com","customCode":"my-promo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "SHORT_CODE_TAKEN") {
		t.Errorf("missing error code in %s", rec.Body.String())
	}
}

func TestCreateLinkInvalidBody(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"url":`, http.StatusBadRequest},
		{"missing url", `{}`, http.StatusBadRequest},
		{"bad scheme", `{"url":"ftp://example.com"}`, http.StatusBadRequest},
		{"bad custom code", `{"url":"https://example.com","customCode":"has space"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.handler.Create(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDeleteLink(t *testing.T) {
	f := newHandlerFixture(t)
	link := seedLink(f, "abc123", nil, true)

	req := httptest.NewRequest(http.MethodDelete, "/api/links/"+link.ID, nil)
	req.SetPathValue("id", link.ID)
	rec := httptest.NewRecorder()
	f.handler.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}

	// A second delete of the same id reports not found.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/links/"+link.ID, nil)
	req.SetPathValue("id", link.ID)
	f.handler.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete: got status %d, want %d", rec.Code, http.StatusNotFound)
	}
}
