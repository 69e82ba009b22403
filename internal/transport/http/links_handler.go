package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/constants"
	"github.com/linksight/linksight/internal/infrastructure/logger"
	appvalidation "github.com/linksight/linksight/internal/infrastructure/validation"
	"github.com/linksight/linksight/internal/processing/links"
	"github.com/linksight/linksight/internal/processing/visits"
	"github.com/linksight/linksight/pkg/httputils"
)

type LinksHandler struct {
	cfg        *config.Config
	svc        *links.Service
	recorder   *visits.Recorder
	anonymizer *visits.Anonymizer
}

func NewLinksHandler(cfg *config.Config, svc *links.Service, recorder *visits.Recorder, anonymizer *visits.Anonymizer) *LinksHandler {
	return &LinksHandler{
		cfg:        cfg,
		svc:        svc,
		recorder:   recorder,
		anonymizer: anonymizer,
	}
}

type createLinkRequest struct {
	URL        string     `json:"url" validate:"required,notblank,http_url"`
	CustomCode string     `json:"customCode,omitempty" validate:"omitempty,shortcode"`
	Tags       []string   `json:"tags,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" validate:"omitempty,future"`
}

type linkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"shortCode"`
	OriginalURL string     `json:"originalUrl"`
	ShortURL    string     `json:"shortUrl"`
	CustomCode  bool       `json:"customCode"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type linkWithStatsResponse struct {
	linkResponse
	TotalVisits    int64         `json:"totalVisits"`
	UniqueVisitors int64         `json:"uniqueVisitors"`
	RecentVisits   []visitOutput `json:"recentVisits"`
}

type visitOutput struct {
	DeviceType string    `json:"deviceType"`
	Referrer   string    `json:"referrer,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		apiErr := constants.ErrInvalidRequestBody
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				if e.Field() == "url" {
					apiErr = constants.ErrInvalidURL
					break
				}
				if e.Field() == "customCode" {
					apiErr = constants.ErrInvalidCode
					break
				}
				if e.Field() == "expiresAt" && e.Tag() == "future" {
					apiErr = apiErr.WithMessage("expiresAt must be in the future")
					break
				}
			}
		}
		httputils.WriteAPIError(w, r, apiErr)
		return
	}

	link, err := h.svc.CreateLink(r.Context(), links.CreateLinkInput{
		OriginalURL: req.URL,
		CustomCode:  req.CustomCode,
		Tags:        req.Tags,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		switch err {
		case links.ErrInvalidURL:
			httputils.WriteAPIError(w, r, constants.ErrInvalidURL)
		case links.ErrInvalidCode:
			httputils.WriteAPIError(w, r, constants.ErrInvalidCode)
		case links.ErrCodeTaken:
			httputils.WriteAPIError(w, r, constants.ErrCodeTaken)
		default:
			logger.Error("failed to create link", zap.Error(err))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkCreated, h.mapLink(link))
}

func (h *LinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	link, err := h.svc.Resolve(r.Context(), code)
	if err != nil {
		switch err {
		case links.ErrNotFound:
			http.NotFound(w, r)
		case links.ErrExpired:
			w.WriteHeader(http.StatusGone)
		default:
			logger.Error("failed to resolve short code", zap.Error(err), zap.String("code", code))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	userAgent := r.UserAgent()
	h.recorder.Record(&links.Visit{
		URLID:      link.ID,
		IPHash:     h.anonymizer.Fingerprint(clientIP(r), userAgent),
		UserAgent:  userAgent,
		DeviceType: visits.ClassifyDevice(userAgent),
		Referrer:   r.Referer(),
	})

	http.Redirect(w, r, link.OriginalURL, h.cfg.Shortener.RedirectStatus)
}

func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListLinks(r.Context())
	if err != nil {
		logger.Error("failed to list links", zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinksFound, h.mapLinksWithStats(list))
}

func (h *LinksHandler) ListByTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	if strings.TrimSpace(tag) == "" {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody.WithMessage("tag must not be empty"))
		return
	}

	list, err := h.svc.ListLinksByTag(r.Context(), tag)
	if err != nil {
		logger.Error("failed to list links by tag", zap.Error(err), zap.String("tag", tag))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinksFound, h.mapLinksWithStats(list))
}

func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		logger.Error("failed to delete link", zap.Error(err), zap.String("id", id))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}
	if !deleted {
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkDeleted, map[string]string{"id": id})
}

func (h *LinksHandler) mapLink(link *links.Link) linkResponse {
	tags := link.Tags
	if tags == nil {
		tags = []string{}
	}
	return linkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ShortURL:    strings.TrimRight(h.cfg.Shortener.BaseURL, "/") + "/" + link.ShortCode,
		CustomCode:  link.CustomCode,
		Tags:        tags,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
}

func (h *LinksHandler) mapLinksWithStats(list []links.LinkWithStats) []linkWithStatsResponse {
	out := make([]linkWithStatsResponse, 0, len(list))
	for i := range list {
		recent := make([]visitOutput, 0, len(list[i].RecentVisits))
		for _, v := range list[i].RecentVisits {
			recent = append(recent, visitOutput{
				DeviceType: v.DeviceType,
				Referrer:   v.Referrer,
				Timestamp:  v.Timestamp,
			})
		}
		out = append(out, linkWithStatsResponse{
			linkResponse:   h.mapLink(&list[i].Link),
			TotalVisits:    list[i].TotalVisits,
			UniqueVisitors: list[i].UniqueVisitors,
			RecentVisits:   recent,
		})
	}
	return out
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
