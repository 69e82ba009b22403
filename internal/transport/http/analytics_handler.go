package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/linksight/linksight/internal/constants"
	"github.com/linksight/linksight/internal/infrastructure/logger"
	"github.com/linksight/linksight/internal/processing/links"
	"github.com/linksight/linksight/pkg/httputils"
)

type AnalyticsHandler struct {
	svc *links.Service
}

func NewAnalyticsHandler(svc *links.Service) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// Analytics reports the per-link rollup. Deleted links keep answering
// here so history outlives the link itself.
func (h *AnalyticsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	data, err := h.svc.Analytics(r.Context(), code)
	if err != nil {
		switch err {
		case links.ErrNotFound:
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		default:
			logger.Error("failed to fetch analytics", zap.Error(err), zap.String("code", code))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessAnalyticsFound, data)
}

func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.OverallStats(r.Context())
	if err != nil {
		logger.Error("failed to fetch overall stats", zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessStatsFound, stats)
}

func (h *AnalyticsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	feed, err := h.svc.RecentActivity(r.Context())
	if err != nil {
		logger.Error("failed to fetch recent activity", zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessActivityFound, feed)
}
