package apihttp

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alertsapp "homeclimate/internal/alerts/application"
	alerts "homeclimate/internal/alerts/domain"
	"homeclimate/internal/audit"
	"homeclimate/internal/auth"
	automation "homeclimate/internal/automation/application"
	detectionapp "homeclimate/internal/detection/application"
	detection "homeclimate/internal/detection/domain"
	energyapp "homeclimate/internal/energy/application"
	energyexport "homeclimate/internal/energy/interfaces"
	learningapp "homeclimate/internal/learning/application"
	learning "homeclimate/internal/learning/domain"
	"homeclimate/internal/observability/metrics"
	patterns "homeclimate/internal/patterns/application"
)

const timeLayout = time.RFC3339

// StatusHandler serves the live loop status.
type StatusHandler struct {
	engine *automation.Engine
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(engine *automation.Engine) *StatusHandler {
	return &StatusHandler{engine: engine}
}

// ServeHTTP handles GET /api/v1/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.engine == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.engine.Status())
}

// SensorsHandler serves a live snapshot of every configured device.
type SensorsHandler struct {
	engine *automation.Engine
}

// NewSensorsHandler constructs a SensorsHandler.
func NewSensorsHandler(engine *automation.Engine) *SensorsHandler {
	return &SensorsHandler{engine: engine}
}

// ServeHTTP handles GET /api/v1/sensors.
func (h *SensorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.engine == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.engine.Snapshot(r.Context()))
}

// PreviewHandler serves the plan the controller would run right now.
type PreviewHandler struct {
	engine *automation.Engine
}

// NewPreviewHandler constructs a PreviewHandler.
func NewPreviewHandler(engine *automation.Engine) *PreviewHandler {
	return &PreviewHandler{engine: engine}
}

// ServeHTTP handles GET /api/v1/preview. Decide only, no device call.
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.engine == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.engine.Preview())
}

// EventsHandler serves the recent event history.
type EventsHandler struct {
	events detection.EventRepository
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(events detection.EventRepository) *EventsHandler {
	return &EventsHandler{events: events}
}

// ServeHTTP handles GET /api/v1/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	days := parseIntQuery(r, "days", 7)
	limit := parseIntQuery(r, "limit", 0)
	since := time.Now().UTC().AddDate(0, 0, -days)

	events, err := h.events.ListSince(r.Context(), since, limit)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []detection.Event{}
	}
	writeJSON(w, events)
}

// ManualEventHandler records backfilled events.
type ManualEventHandler struct {
	recorder *detectionapp.ManualRecorder
	auditLog audit.Logger
}

// NewManualEventHandler constructs a ManualEventHandler.
func NewManualEventHandler(recorder *detectionapp.ManualRecorder, auditLog audit.Logger) *ManualEventHandler {
	return &ManualEventHandler{recorder: recorder, auditLog: auditLog}
}

type manualEventRequest struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	PeakHumidity float64   `json:"peak_humidity"`
	Notes        string    `json:"notes"`
}

// ServeHTTP handles POST /api/v1/events/manual.
func (h *ManualEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.recorder == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req manualEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	event, err := h.recorder.Record(r.Context(), detectionapp.ManualEntry{
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		PeakHumidity: req.PeakHumidity,
		Notes:        req.Notes,
	})
	if err != nil {
		if errors.Is(err, detection.ErrInvalidManualEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "record manual event error", http.StatusInternalServerError)
		return
	}
	metrics.IncEventFinalized("manual")
	writeAudit(r, h.auditLog, "manual_event.create", "usage_event", event.ID, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSONBody(w, event)
}

// AnalyticsHandler serves usage pattern summaries and the prediction.
type AnalyticsHandler struct {
	events     detection.EventRepository
	analyzer   *patterns.Analyzer
	thresholds *detectionapp.ThresholdStore
}

// NewAnalyticsHandler constructs an AnalyticsHandler.
func NewAnalyticsHandler(events detection.EventRepository, analyzer *patterns.Analyzer, thresholds *detectionapp.ThresholdStore) *AnalyticsHandler {
	return &AnalyticsHandler{events: events, analyzer: analyzer, thresholds: thresholds}
}

type analyticsPatterns struct {
	Hourly    []patterns.HourBucket `json:"hourly"`
	Weekday   []patterns.DayBucket  `json:"weekday"`
	PeakHours []int                 `json:"peak_hours"`
}

type analyticsResponse struct {
	Available       bool                 `json:"available"`
	LearningEnabled bool                 `json:"learning_enabled"`
	Message         string               `json:"message,omitempty"`
	EventsCount     int                  `json:"events_count"`
	Patterns        *analyticsPatterns   `json:"patterns,omitempty"`
	Statistics      *patterns.Stats      `json:"statistics,omitempty"`
	Prediction      *patterns.Prediction `json:"prediction,omitempty"`
}

// ServeHTTP handles GET /api/v1/analytics.
func (h *AnalyticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil || h.analyzer == nil || h.thresholds == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	days := parseIntQuery(r, "days", 30)
	now := time.Now().UTC()
	events, err := h.events.ListSince(r.Context(), now.AddDate(0, 0, -days), 0)
	if err != nil {
		metrics.IncAnalyticsRequest(metrics.ResultError)
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}

	summary := h.analyzer.Analyze(events, now)
	response := analyticsResponse{
		Available:       summary.SufficientData,
		LearningEnabled: h.thresholds.Load().Learned,
		Message:         summary.Message,
		EventsCount:     summary.EventsCount,
		Prediction:      summary.Prediction,
	}
	if summary.SufficientData {
		stats := patterns.ComputeStats(events)
		response.Statistics = &stats
		response.Patterns = &analyticsPatterns{
			Hourly:    summary.Hourly,
			Weekday:   summary.Weekday,
			PeakHours: summary.PeakHours,
		}
	}
	metrics.IncAnalyticsRequest(metrics.ResultSuccess)
	writeJSON(w, response)
}

// OptimizeHandler triggers one threshold learning run.
type OptimizeHandler struct {
	learner  *learningapp.Learner
	auditLog audit.Logger
}

// NewOptimizeHandler constructs an OptimizeHandler.
func NewOptimizeHandler(learner *learningapp.Learner, auditLog audit.Logger) *OptimizeHandler {
	return &OptimizeHandler{learner: learner, auditLog: auditLog}
}

type optimizeRequest struct {
	DaysBack      int     `json:"days_back"`
	MinConfidence float64 `json:"min_confidence"`
}

// ServeHTTP handles POST /api/v1/optimize.
func (h *OptimizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.learner == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req optimizeRequest
	if r.Body != nil {
		// Body is optional; defaults apply when absent.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.learner.Optimize(r.Context(), req.DaysBack, req.MinConfidence)
	if err != nil {
		if errors.Is(err, learning.ErrBusy) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			writeJSONBody(w, map[string]any{
				"success": false,
				"reason":  "optimization already running",
			})
			return
		}
		http.Error(w, "optimize error", http.StatusInternalServerError)
		return
	}
	writeAudit(r, h.auditLog, "thresholds.optimize", "learned_parameters", "", req)
	writeJSON(w, result)
}

// LearnedHandler serves the current learned parameters.
type LearnedHandler struct {
	params     learning.ParameterRepository
	thresholds *detectionapp.ThresholdStore
}

// NewLearnedHandler constructs a LearnedHandler.
func NewLearnedHandler(params learning.ParameterRepository, thresholds *detectionapp.ThresholdStore) *LearnedHandler {
	return &LearnedHandler{params: params, thresholds: thresholds}
}

type learnedParameterView struct {
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Confidence  float64   `json:"confidence"`
	SamplesUsed int       `json:"samples_used"`
	ComputedAt  time.Time `json:"computed_at"`
	IsLearned   bool      `json:"is_learned"`
}

type learnedResponse struct {
	Parameters []learnedParameterView `json:"parameters"`
	Effective  detection.ThresholdSet `json:"effective"`
}

// ServeHTTP handles GET /api/v1/learned.
func (h *LearnedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.params == nil || h.thresholds == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	params, err := h.params.List(r.Context())
	if err != nil {
		http.Error(w, "query parameters error", http.StatusInternalServerError)
		return
	}
	views := make([]learnedParameterView, 0, len(params))
	for _, param := range params {
		views = append(views, learnedParameterView{
			Name:        param.Name,
			Value:       param.Value,
			Confidence:  param.Confidence,
			SamplesUsed: param.SamplesUsed,
			ComputedAt:  param.ComputedAt,
			IsLearned:   param.IsLearned,
		})
	}
	writeJSON(w, learnedResponse{Parameters: views, Effective: h.thresholds.Load()})
}

// LearnedResetHandler reverts to manual thresholds.
type LearnedResetHandler struct {
	learner  *learningapp.Learner
	auditLog audit.Logger
}

// NewLearnedResetHandler constructs a LearnedResetHandler.
func NewLearnedResetHandler(learner *learningapp.Learner, auditLog audit.Logger) *LearnedResetHandler {
	return &LearnedResetHandler{learner: learner, auditLog: auditLog}
}

// ServeHTTP handles POST /api/v1/learned/reset.
func (h *LearnedResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.learner == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	result, err := h.learner.Reset(r.Context())
	if err != nil {
		http.Error(w, "reset error", http.StatusInternalServerError)
		return
	}
	writeAudit(r, h.auditLog, "thresholds.reset", "learned_parameters", "", nil)
	writeJSON(w, result)
}

// EnergyHandler serves the energy/cost report.
type EnergyHandler struct {
	events    detection.EventRepository
	estimator *energyapp.Estimator
}

// NewEnergyHandler constructs an EnergyHandler.
func NewEnergyHandler(events detection.EventRepository, estimator *energyapp.Estimator) *EnergyHandler {
	return &EnergyHandler{events: events, estimator: estimator}
}

// ServeHTTP handles GET /api/v1/energy.
func (h *EnergyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil || h.estimator == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	days := parseIntQuery(r, "days", 30)
	events, err := h.events.ListSince(r.Context(), time.Now().UTC().AddDate(0, 0, -days), 0)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.estimator.Estimate(events, days))
}

// EnergyExportHandler serves energy report downloads in CSV, PDF and
// XLSX formats, dispatched on the path suffix.
type EnergyExportHandler struct {
	events    detection.EventRepository
	estimator *energyapp.Estimator
}

// NewEnergyExportHandler constructs an EnergyExportHandler.
func NewEnergyExportHandler(events detection.EventRepository, estimator *energyapp.Estimator) *EnergyExportHandler {
	return &EnergyExportHandler{events: events, estimator: estimator}
}

// ServeHTTP handles GET /api/v1/exports/energy.{csv,pdf,xlsx}.
func (h *EnergyExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil || h.estimator == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	days := parseIntQuery(r, "days", 30)
	events, err := h.events.ListSince(r.Context(), time.Now().UTC().AddDate(0, 0, -days), 0)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	report := h.estimator.Estimate(events, days)

	switch r.URL.Path {
	case "/api/v1/exports/energy.csv":
		h.writeCSV(w, events)
	case "/api/v1/exports/energy.pdf":
		data, err := energyexport.BuildEnergyReportPDF(report, events, time.Now().UTC())
		if err != nil {
			http.Error(w, "render pdf error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="energy.pdf"`)
		_, _ = w.Write(data)
	case "/api/v1/exports/energy.xlsx":
		data, err := energyexport.BuildEnergyReportXLSX(report, events)
		if err != nil {
			http.Error(w, "render xlsx error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="energy.xlsx"`)
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func (h *EnergyExportHandler) writeCSV(w http.ResponseWriter, events []detection.Event) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"id",
		"start_time",
		"end_time",
		"duration_minutes",
		"peak_humidity",
		"avg_humidity",
		"runtime_minutes",
		"manual",
	})
	for _, event := range events {
		runtime := ""
		if event.DehumidifierRuntimeMinutes != nil {
			runtime = formatFloat(*event.DehumidifierRuntimeMinutes)
		}
		_ = writer.Write([]string{
			event.ID,
			event.StartTime.UTC().Format(timeLayout),
			event.EndTime.UTC().Format(timeLayout),
			formatFloat(event.DurationMinutes),
			formatFloat(event.PeakHumidity),
			formatFloat(event.AvgHumidity),
			runtime,
			strconv.FormatBool(event.Manual),
		})
	}
	writer.Flush()
}

// AlertsHandler scans recent history for anomalies on demand.
type AlertsHandler struct {
	alerts     *alertsapp.Engine
	thresholds *detectionapp.ThresholdStore
}

// NewAlertsHandler constructs an AlertsHandler.
func NewAlertsHandler(alerts *alertsapp.Engine, thresholds *detectionapp.ThresholdStore) *AlertsHandler {
	return &AlertsHandler{alerts: alerts, thresholds: thresholds}
}

// ServeHTTP handles GET /api/v1/alerts.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.alerts == nil || h.thresholds == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	days := parseIntQuery(r, "days", 7)
	found, err := h.alerts.Scan(r.Context(), days, h.thresholds.Load())
	if err != nil {
		http.Error(w, "scan alerts error", http.StatusInternalServerError)
		return
	}
	for _, alert := range found {
		metrics.IncAlertEmitted(alert.Severity)
	}
	if found == nil {
		found = []alerts.Alert{}
	}
	writeJSON(w, found)
}

// writeAudit records an operator action. Audit failures are logged by
// the repository layer and never block the response.
func writeAudit(r *http.Request, logger audit.Logger, action, resourceType, resourceID string, payload any) {
	if logger == nil {
		return
	}
	var metadata json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			metadata = data
		}
	}
	_ = logger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, value)
}

func writeJSONBody(w http.ResponseWriter, value any) {
	_ = json.NewEncoder(w).Encode(value)
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
