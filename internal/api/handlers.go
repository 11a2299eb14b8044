// Package api exposes the HTTP surface of the insight service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/auth"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/ingest"
	"example.com/insight/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultZoneWindowDays = 90
	maxZoneWindowDays     = 365

	maxImportMemory = 32 << 20
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux. The exact-match import
// route takes precedence over the activity subtree.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/import", h.importFiles)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/insights/training-load", h.trainingLoad)
	mux.HandleFunc("/v1/insights/zone-distribution", h.zoneDistribution)
	mux.HandleFunc("/v1/settings", h.settings)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize resolves the request claims and accepts any of the given
// scopes. A false return means the response has been written.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingestActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := h.authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	switch sub {
	case "":
		h.getActivity(w, r, claims, id)
	case "distribution":
		h.distribution(w, r, claims, id)
	case "classification":
		h.classification(w, r, claims, id)
	case "intervals":
		h.intervals(w, r, claims, id)
	case "advanced":
		h.advanced(w, r, claims, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource "+sub)
	}
}

func (h *Handler) ingestActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var input domain.ActivityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	// The token, not the payload, decides the tenant.
	input.TenantID = claims.TenantID

	act, created, err := h.service.IngestActivity(r.Context(), input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidActivity) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, IngestResponse{
		ActivityID: act.ID,
		Created:    created,
		DataKind:   string(act.DataKind()),
	})
}

func (h *Handler) importFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxImportMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form upload")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "no files in upload field 'files'")
		return
	}

	resp := ImportResponse{Files: make([]FileImportResult, 0, len(headers))}
	for _, hdr := range headers {
		result := FileImportResult{Filename: hdr.Filename}

		file, err := hdr.Open()
		if err != nil {
			result.Error = err.Error()
			resp.Files = append(resp.Files, result)
			continue
		}
		inputs, err := ingest.ParseFile(hdr.Filename, file)
		file.Close()
		if err != nil {
			result.Error = err.Error()
			resp.Files = append(resp.Files, result)
			continue
		}

		for _, input := range inputs {
			input.TenantID = claims.TenantID
			if _, _, err := h.service.IngestActivity(r.Context(), input); err != nil {
				if errors.Is(err, domain.ErrInvalidActivity) {
					result.Skipped++
					continue
				}
				writeError(w, http.StatusInternalServerError, "server_error", err.Error())
				return
			}
			result.Imported++
		}

		resp.Imported += result.Imported
		resp.Files = append(resp.Files, result)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	sport, ok := h.sportParam(w, r)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	items, next, err := h.service.ListActivities(r.Context(), claims.TenantID, sport, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ListActivitiesResponse{Items: make([]ActivityView, 0, len(items))}
	for _, act := range items {
		resp.Items = append(resp.Items, toActivityView(act))
	}
	resp.NextCursor = persistence.EncodeCursor(next)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, claims *auth.Claims, id string) {
	act, err := h.service.GetActivity(r.Context(), claims.TenantID, id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*act))
}

func (h *Handler) distribution(w http.ResponseWriter, r *http.Request, claims *auth.Claims, id string) {
	signal := r.URL.Query().Get("signal")
	if signal == "" {
		signal = domain.SignalHR
	}
	if signal != domain.SignalHR && signal != domain.SignalPower {
		writeError(w, http.StatusBadRequest, "validation_failed", "signal must be hr or power")
		return
	}

	dist, kind, err := h.service.Distribution(r.Context(), claims.TenantID, id, signal)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DistributionResponse{
		Available:    dist != nil,
		Signal:       signal,
		DataKind:     string(kind),
		Distribution: dist,
	})
}

func (h *Handler) classification(w http.ResponseWriter, r *http.Request, claims *auth.Claims, id string) {
	cls, err := h.service.Classification(r.Context(), claims.TenantID, id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	resp := ClassificationResponse{
		Available: cls.Category != "",
		DataKind:  string(cls.DataKind),
	}
	if resp.Available {
		resp.Classification = &cls
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) intervals(w http.ResponseWriter, r *http.Request, claims *auth.Claims, id string) {
	report, kind, err := h.service.Intervals(r.Context(), claims.TenantID, id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	resp := IntervalsResponse{
		Available: kind == analysis.DataDetailed,
		DataKind:  string(kind),
	}
	if resp.Available {
		resp.Report = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) advanced(w http.ResponseWriter, r *http.Request, claims *auth.Claims, id string) {
	metrics, kind, err := h.service.AdvancedMetrics(r.Context(), claims.TenantID, id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	resp := AdvancedResponse{
		Available: metrics != (analysis.AdvancedMetrics{}),
		DataKind:  string(kind),
	}
	if resp.Available {
		resp.Metrics = &metrics
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) trainingLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.authorize(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	reports, err := h.service.TrainingLoad(r.Context(), claims.TenantID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TrainingLoadResponse{Reports: reports})
}

func (h *Handler) zoneDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.authorize(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	sport, ok := h.sportParam(w, r)
	if !ok {
		return
	}

	days := defaultZoneWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be a positive integer")
			return
		}
		if parsed > maxZoneWindowDays {
			parsed = maxZoneWindowDays
		}
		days = parsed
	}

	zones, err := h.service.ZoneDistribution(r.Context(), claims.TenantID, sport, days, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ZoneDistributionResponse{
		Sport: string(sport),
		Days:  days,
		Zones: zones,
	})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := h.authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
		if !ok {
			return
		}
		settings, err := h.service.Settings(r.Context(), claims.TenantID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toSettingsView(settings))
	case http.MethodPut:
		claims, ok := h.authorize(w, r, auth.ScopeActivitiesWrite)
		if !ok {
			return
		}
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		updated, err := h.service.UpdateSettings(r.Context(), claims.TenantID, domain.Settings{
			Zones: req.Zones,
			MaxHR: req.MaxHR,
			FTP:   req.FTP,
		})
		if err != nil {
			if errors.Is(err, analysis.ErrInvalidConfig) {
				writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toSettingsView(updated))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// sportParam parses the optional sport filter. A false return means
// the response has been written.
func (h *Handler) sportParam(w http.ResponseWriter, r *http.Request) (analysis.Sport, bool) {
	raw := r.URL.Query().Get("sport")
	if raw == "" {
		return "", true
	}
	sport, err := domain.ParseSport(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown sport "+raw)
		return "", false
	}
	return sport, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrActivityNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

// IngestResponse describes the result of a single-record ingest.
type IngestResponse struct {
	ActivityID string `json:"activity_id"`
	Created    bool   `json:"created"`
	DataKind   string `json:"data_kind"`
}

// FileImportResult reports the outcome for one uploaded file.
type FileImportResult struct {
	Filename string `json:"filename"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// ImportResponse aggregates per-file import outcomes.
type ImportResponse struct {
	Files    []FileImportResult `json:"files"`
	Imported int                `json:"imported"`
}

// ActivityView is the wire shape of a stored activity. Streams stay
// server-side; the analysis endpoints expose what they derive.
type ActivityView struct {
	ActivityID  string    `json:"activity_id"`
	Sport       string    `json:"sport"`
	StartedAt   time.Time `json:"started_at"`
	DistanceKm  float64   `json:"distance_km"`
	DurationSec float64   `json:"duration_sec"`
	AvgHR       *int      `json:"avg_hr,omitempty"`
	MaxHR       *int      `json:"max_hr,omitempty"`
	AvgWatts    *int      `json:"avg_watts,omitempty"`
	MaxWatts    *int      `json:"max_watts,omitempty"`
	HRKind      string    `json:"hr_kind"`
	PowerKind   string    `json:"power_kind"`
	DataKind    string    `json:"data_kind"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages one page of results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// DistributionResponse wraps a zone distribution with availability.
type DistributionResponse struct {
	Available    bool                   `json:"available"`
	Signal       string                 `json:"signal"`
	DataKind     string                 `json:"data_kind"`
	Distribution *analysis.Distribution `json:"distribution,omitempty"`
}

// ClassificationResponse wraps a classification with availability.
type ClassificationResponse struct {
	Available      bool                     `json:"available"`
	DataKind       string                   `json:"data_kind"`
	Classification *analysis.Classification `json:"classification,omitempty"`
}

// IntervalsResponse wraps an interval report with availability.
type IntervalsResponse struct {
	Available bool                     `json:"available"`
	DataKind  string                   `json:"data_kind"`
	Report    *analysis.IntervalReport `json:"report,omitempty"`
}

// AdvancedResponse wraps the advanced metrics with availability.
type AdvancedResponse struct {
	Available bool                      `json:"available"`
	DataKind  string                    `json:"data_kind"`
	Metrics   *analysis.AdvancedMetrics `json:"metrics,omitempty"`
}

// TrainingLoadResponse carries the five traffic-light reports keyed
// by metric name.
type TrainingLoadResponse struct {
	Reports map[string]analysis.Report `json:"reports"`
}

// ZoneDistributionResponse reports distance per zone over a window.
type ZoneDistributionResponse struct {
	Sport string                 `json:"sport,omitempty"`
	Days  int                    `json:"days"`
	Zones analysis.ZoneDistances `json:"zones"`
}

// SettingsView is the wire shape of the athlete configuration.
type SettingsView struct {
	Zones     analysis.Fractions `json:"zones"`
	MaxHR     int                `json:"max_hr"`
	FTP       int                `json:"ftp"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SettingsRequest is the payload for PUT /v1/settings.
type SettingsRequest struct {
	Zones analysis.Fractions `json:"zones"`
	MaxHR int                `json:"max_hr"`
	FTP   int                `json:"ftp"`
}

func toSettingsView(s domain.Settings) SettingsView {
	return SettingsView{Zones: s.Zones, MaxHR: s.MaxHR, FTP: s.FTP, UpdatedAt: s.UpdatedAt}
}

func toActivityView(act domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:  act.ID,
		Sport:       string(act.Sport),
		StartedAt:   act.StartedAt,
		DistanceKm:  act.DistanceKm,
		DurationSec: act.DurationSec,
		AvgHR:       act.AvgHR,
		MaxHR:       act.MaxHR,
		AvgWatts:    act.AvgWatts,
		MaxWatts:    act.MaxWatts,
		HRKind:      string(act.HRKind),
		PowerKind:   string(act.PowerKind),
		DataKind:    string(act.DataKind()),
		Source:      act.Source,
		CreatedAt:   act.CreatedAt,
		UpdatedAt:   act.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
