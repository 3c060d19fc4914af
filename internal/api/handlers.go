package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voltsight/twin-gateway/internal/auth"
	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/services"
	"github.com/voltsight/twin-gateway/internal/utils"
)

const (
	msgAnalysisFailed     = "An error occurred while analyzing the battery data."
	msgHistoryDisabled    = "History is not enabled."
	msgInvalidQuery       = "Invalid query parameters."
	msgListAnalysesFailed = "An error occurred while listing analyses."
	msgBatteryNotFound    = "Battery not found."

	maxBodyBytes = 1 << 20
)

// Analyzer is the prediction facade the handlers drive.
type Analyzer interface {
	Analyze(ctx context.Context, identity models.Identity, in models.GuidedInput) (models.PredictionResult, error)
	ListAnalyses(ctx context.Context, identity models.Identity, since time.Time, limit int) ([]models.AnalysisRecord, error)
}

// PresetCatalog supplies the battery catalogue.
type PresetCatalog interface {
	List() []models.BatteryPreset
	Lookup(id string) (models.BatteryPreset, bool)
}

// Handlers serves the gateway's HTTP endpoints.
type Handlers struct {
	logger   *slog.Logger
	analyzer Analyzer
	presets  PresetCatalog
}

// NewHandlers constructs the endpoint set. presets may be nil.
func NewHandlers(logger *slog.Logger, analyzer Analyzer, presets PresetCatalog) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, analyzer: analyzer, presets: presets}
}

// AnalyzeGuided handles POST /api/analyze-guided.
func (h *Handlers) AnalyzeGuided(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	var in models.GuidedInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		h.logger.Debug("decode guided input", slog.String("uid", identity.UID), slog.Any("error", err))
		writeText(w, http.StatusBadRequest, models.MissingParametersMessage)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), identity, in)
	if err != nil {
		if utils.KindOf(err) == utils.KindBadRequest {
			writeText(w, http.StatusBadRequest, models.MissingParametersMessage)
			return
		}
		writeText(w, http.StatusInternalServerError, msgAnalysisFailed)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListAnalyses handles GET /api/analyses.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeText(w, http.StatusBadRequest, msgInvalidQuery)
			return
		}
		limit = n
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := utils.ParseRFC3339(raw)
		if err != nil {
			writeText(w, http.StatusBadRequest, msgInvalidQuery)
			return
		}
		since = ts
	}

	records, err := h.analyzer.ListAnalyses(r.Context(), identity, since, limit)
	if errors.Is(err, services.ErrHistoryDisabled) {
		writeText(w, http.StatusNotFound, msgHistoryDisabled)
		return
	}
	if err != nil {
		h.logger.Error("list analyses failed", slog.String("uid", identity.UID), slog.Any("error", err))
		writeText(w, http.StatusInternalServerError, msgListAnalysesFailed)
		return
	}
	if records == nil {
		records = []models.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": records})
}

// ListBatteries handles GET /api/batteries.
func (h *Handlers) ListBatteries(w http.ResponseWriter, r *http.Request) {
	var presets []models.BatteryPreset
	if h.presets != nil {
		presets = h.presets.List()
	}
	if presets == nil {
		presets = []models.BatteryPreset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batteries": presets})
}

// GetBattery handles GET /api/batteries/{id}.
func (h *Handlers) GetBattery(w http.ResponseWriter, r *http.Request) {
	if h.presets == nil {
		writeText(w, http.StatusNotFound, msgBatteryNotFound)
		return
	}
	preset, ok := h.presets.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeText(w, http.StatusNotFound, msgBatteryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
