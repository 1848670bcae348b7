package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"recon-flyover/internal/imagery"
	"recon-flyover/internal/mission"
	"recon-flyover/internal/repository"
	"recon-flyover/internal/taskqueue"
)

// Dispatcher accepts recon requests for asynchronous execution
type Dispatcher interface {
	Submit(ctx context.Context, poi, location string) (*mission.Result, error)
	Cancel(id string) error
}

// ProviderStatus lists the configured providers and any currently
// rate-limited imagery source
type ProviderStatus struct {
	Geocoders  []string                 `json:"geocoders"`
	Imagery    []string                 `json:"imagery_sources"`
	RateLimits []imagery.RateLimitEvent `json:"rate_limits"`
}

// StatusReporter reports provider health
type StatusReporter interface {
	ProviderStatus() ProviderStatus
}

type Handler struct {
	repo       repository.MissionRepository
	dispatcher Dispatcher
	status     StatusReporter
	outputRoot string
}

func NewHandler(repo repository.MissionRepository, dispatcher Dispatcher, outputRoot string) *Handler {
	return &Handler{
		repo:       repo,
		dispatcher: dispatcher,
		outputRoot: outputRoot,
	}
}

// SetStatusReporter enables GET /api/v1/providers
func (h *Handler) SetStatusReporter(s StatusReporter) {
	h.status = s
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/api/v1")
	v1.POST("/missions", h.createMission)
	v1.GET("/missions", h.listMissions)
	v1.GET("/missions/:id", h.getMission)
	v1.DELETE("/missions/:id", h.cancelMission)
	v1.GET("/missions/:id/drone", h.getDrone)
	v1.GET("/missions/:id/plan", h.getPlan)
	v1.GET("/providers", h.getProviders)
}

type createMissionRequest struct {
	POI      string `json:"poi" binding:"required"`
	Location string `json:"location"`
}

func (h *Handler) createMission(c *gin.Context) {
	var req createMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.POI) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "poi is required"})
		return
	}

	result, err := h.dispatcher.Submit(c.Request.Context(), strings.TrimSpace(req.POI), strings.TrimSpace(req.Location))
	if err != nil {
		switch {
		case errors.Is(err, taskqueue.ErrQueueFull), errors.Is(err, taskqueue.ErrQueueStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			slog.Error("mission submit failed", "poi", req.POI, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit mission"})
		}
		return
	}

	c.Header("Location", "/api/v1/missions/"+result.ID)
	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) listMissions(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20,
		POI:   c.Query("poi"),
	}

	if s := c.Query("status"); s != "" {
		status := mission.Status(strings.ToLower(s))
		filter.Status = &status
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	missions, err := h.repo.ListMissions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch missions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"missions": missions,
		"count":    len(missions),
	})
}

func (h *Handler) getMission(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) cancelMission(c *gin.Context) {
	id := c.Param("id")
	if err := h.dispatcher.Cancel(id); err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mission not queued"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"mission_id": id, "status": "cancelling"})
}

// droneResponse is the game-facing view of a mission
type droneResponse struct {
	MissionID  string                 `json:"mission_id"`
	Status     mission.Status         `json:"status"`
	Target     string                 `json:"target"`
	LocationID string                 `json:"location_id"`
	FlightPlan *mission.Plan          `json:"flight_plan,omitempty"`
	Frames     []mission.FrameSummary `json:"frames"`
	ViewerURL  string                 `json:"viewer_url,omitempty"`
	VideoURL   string                 `json:"video_url,omitempty"`
	GeoTIFFURL string                 `json:"geotiff_url,omitempty"`
}

func (h *Handler) getDrone(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, droneResponse{
		MissionID:  result.ID,
		Status:     result.Status,
		Target:     result.POI,
		LocationID: result.LocationID,
		FlightPlan: result.Plan,
		Frames:     result.Frames,
		ViewerURL:  h.outputURL(result.ViewerPath),
		VideoURL:   h.outputURL(result.VideoPath),
		GeoTIFFURL: h.outputURL(result.GeoTIFFPath),
	})
}

func (h *Handler) getPlan(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	if result.Plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "mission has no flight plan yet"})
		return
	}

	name := result.Plan.MissionName
	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "json":
		c.JSON(http.StatusOK, result.Plan)
	case "csv":
		c.Header("Content-Disposition", `attachment; filename="`+name+`.csv"`)
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := result.Plan.WriteCSV(c.Writer); err != nil {
			slog.Error("plan csv write failed", "mission_id", result.ID, "error", err)
		}
	case "kml":
		c.Header("Content-Disposition", `attachment; filename="`+name+`.kml"`)
		c.Header("Content-Type", "application/vnd.google-earth.kml+xml")
		c.Status(http.StatusOK)
		if err := result.Plan.WriteKML(c.Writer); err != nil {
			slog.Error("plan kml write failed", "mission_id", result.ID, "error", err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json, csv or kml"})
	}
}

func (h *Handler) getProviders(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider status unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.status.ProviderStatus())
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) lookup(c *gin.Context) (*mission.Result, bool) {
	result, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrMissionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mission not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch mission"})
		}
		return nil, false
	}
	return result, true
}

// outputURL maps a file under the output root to its /output URL
func (h *Handler) outputURL(path string) string {
	if path == "" || h.outputRoot == "" {
		return ""
	}
	rel, err := filepath.Rel(h.outputRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/output/" + filepath.ToSlash(rel)
}
