package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

const (
	defaultRunsLimit   = 50
	defaultEventsLimit = 100
	maxListLimit       = 1000
	dateLayout         = "2006-01-02"
)

// SourceReader is the read side of the source store.
type SourceReader interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.Source, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Source, error)
}

// RunReader lists crawl runs.
type RunReader interface {
	Recent(ctx context.Context, sourceID string, limit int) ([]*domain.CrawlRun, error)
}

// EventReader lists upcoming canonical events.
type EventReader interface {
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*domain.Event, error)
}

// Auditor classifies a source.
type Auditor interface {
	Audit(ctx context.Context, src *domain.Source, force bool) (domain.IntegrationMethod, error)
}

// Crawler runs one source synchronously.
type Crawler interface {
	Crawl(ctx context.Context, slug string) (found, created, updated int, err error)
}

// Handler serves the v1 routes.
type Handler struct {
	sources SourceReader
	runs    RunReader
	events  EventReader
	auditor Auditor
	crawler Crawler
	log     logger.Logger
	now     func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(
	sources SourceReader,
	runs RunReader,
	events EventReader,
	auditor Auditor,
	crawler Crawler,
	log logger.Logger,
) *Handler {
	return &Handler{
		sources: sources,
		runs:    runs,
		events:  events,
		auditor: auditor,
		crawler: crawler,
		log:     log,
		now:     time.Now,
	}
}

// Routes mounts /health, /metrics and /api/v1 on router. A nil gatherer leaves /metrics unmounted.
func (h *Handler) Routes(router *gin.Engine, gatherer prometheus.Gatherer) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/sources", h.ListSources)
	v1.POST("/sources/:slug/audit", h.AuditSource)
	v1.POST("/sources/:slug/crawl", h.CrawlSource)
	v1.GET("/runs", h.ListRuns)
	v1.GET("/events", h.ListEvents)
}

func (h *Handler) requestLog(c *gin.Context) logger.Logger {
	return logger.FromContext(c.Request.Context(), h.log)
}

// ListSources handles GET /api/v1/sources?active=true.
func (h *Handler) ListSources(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	sources, err := h.sources.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.requestLog(c).Error("Failed to list sources", logger.Error(err))
		respondInternalError(c, "failed to list sources")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "total": len(sources)})
}

// AuditSource handles POST /api/v1/sources/:slug/audit?force=true.
func (h *Handler) AuditSource(c *gin.Context) {
	src, ok := h.loadSource(c)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	method, err := h.auditor.Audit(c.Request.Context(), src, force)
	if err != nil {
		h.requestLog(c).Warn("Audit failed", logger.String("source", src.Slug), logger.Error(err))
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": src.Slug, "integration_method": method})
}

// CrawlSource handles POST /api/v1/sources/:slug/crawl. The crawl runs inside the request.
func (h *Handler) CrawlSource(c *gin.Context) {
	slug := c.Param("slug")

	found, created, updated, err := h.crawler.Crawl(c.Request.Context(), slug)
	resp := gin.H{"slug": slug, "events_found": found, "events_new": created, "events_updated": updated}

	switch {
	case err == nil:
		resp["status"] = domain.RunSuccess
	case errors.Is(err, store.ErrNotFound):
		respondNotFound(c, "source")
		return
	case errors.Is(err, orchestrator.ErrSourceBusy):
		respondError(c, http.StatusConflict, "source is being crawled elsewhere")
		return
	case errors.Is(err, orchestrator.ErrRunTimedOut):
		resp["status"] = domain.RunTimedOut
		resp["error"] = err.Error()
	case errors.Is(err, orchestrator.ErrRunFailed):
		resp["status"] = domain.RunFailed
		resp["error"] = err.Error()
	default:
		h.requestLog(c).Error("Crawl could not start", logger.String("source", slug), logger.Error(err))
		respondInternalError(c, "crawl could not start")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/v1/runs?source=slug&limit=n.
func (h *Handler) ListRuns(c *gin.Context) {
	var sourceID string
	if c.Query("source") != "" {
		src, ok := h.loadSourceBySlug(c, c.Query("source"))
		if !ok {
			return
		}
		sourceID = src.ID
	}

	runs, err := h.runs.Recent(c.Request.Context(), sourceID, parseLimit(c, defaultRunsLimit, maxListLimit))
	if err != nil {
		h.requestLog(c).Error("Failed to list runs", logger.Error(err))
		respondInternalError(c, "failed to list runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// ListEvents handles GET /api/v1/events?from=YYYY-MM-DD&limit=n.
func (h *Handler) ListEvents(c *gin.Context) {
	from := h.now().UTC().Truncate(24 * time.Hour)
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			respondBadRequest(c, "from must be a YYYY-MM-DD date")
			return
		}
		from = parsed
	}

	events, err := h.events.ListUpcoming(c.Request.Context(), from, parseLimit(c, defaultEventsLimit, maxListLimit))
	if err != nil {
		h.requestLog(c).Error("Failed to list events", logger.Error(err))
		respondInternalError(c, "failed to list events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events), "from": from.Format(dateLayout)})
}

func (h *Handler) loadSource(c *gin.Context) (*domain.Source, bool) {
	return h.loadSourceBySlug(c, c.Param("slug"))
}

func (h *Handler) loadSourceBySlug(c *gin.Context, slug string) (*domain.Source, bool) {
	src, err := h.sources.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, store.ErrNotFound) {
		respondNotFound(c, "source")
		return nil, false
	}
	if err != nil {
		h.requestLog(c).Error("Failed to load source", logger.String("source", slug), logger.Error(err))
		respondInternalError(c, "failed to load source")
		return nil, false
	}
	return src, true
}
