package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticdata/whisper-web/internal/annotation"
	"github.com/semanticdata/whisper-web/internal/capture"
	"github.com/semanticdata/whisper-web/internal/config"
	"github.com/semanticdata/whisper-web/internal/export"
	"github.com/semanticdata/whisper-web/internal/metrics"
	"github.com/semanticdata/whisper-web/internal/session"
	"github.com/semanticdata/whisper-web/internal/storage"
	"github.com/semanticdata/whisper-web/internal/transcription"
)

// HTTPServer provides the annotation workflow API plus monitoring endpoints
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	coordinator *session.Coordinator
	capture     *capture.Session
	ingest      *capture.PushDevice
	store       *storage.Store
	engine      *transcription.Client
	metrics     *metrics.Metrics

	startTime time.Time
}

// maxFragmentSize caps a single ingested audio fragment.
const maxFragmentSize = 10 << 20

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	coordinator *session.Coordinator, captureSession *capture.Session, ingest *capture.PushDevice,
	store *storage.Store, engine *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		coordinator: coordinator,
		capture:     captureSession,
		ingest:      ingest,
		store:       store,
		engine:      engine,
		metrics:     m,
		startTime:   time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Workflow view endpoint
	mux.HandleFunc("/view", h.withMetrics("/view", h.handleView))

	// Annotation CRUD endpoints
	mux.HandleFunc("/annotations", h.withMetrics("/annotations", h.handleAnnotations))
	mux.HandleFunc("/annotations/", h.withMetrics("/annotations/{id}", h.handleAnnotationDetail))

	// Selection cursor endpoint
	mux.HandleFunc("/selection", h.withMetrics("/selection", h.handleSelection))

	// Recording lifecycle endpoints
	mux.HandleFunc("/recording", h.withMetrics("/recording", h.handleRecording))
	mux.HandleFunc("/recording/start", h.withMetrics("/recording/start", h.handleRecordingStart))
	mux.HandleFunc("/recording/stop", h.withMetrics("/recording/stop", h.handleRecordingStop))
	mux.HandleFunc("/recording/fragment", h.withMetrics("/recording/fragment", h.handleRecordingFragment))
	mux.HandleFunc("/recording/audio", h.withMetrics("/recording/audio", h.handleRecordingAudio))

	// Transcript export endpoints
	mux.HandleFunc("/export/text", h.withMetrics("/export/text", h.handleExportText))
	mux.HandleFunc("/export/json", h.withMetrics("/export/json", h.handleExportJSON))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	captureStats := h.capture.GetStats()
	engineStats := h.engine.GetStats()
	coordinatorStats := h.coordinator.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "whisper-web",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"capture": map[string]interface{}{
				"status": "running",
				"state":  captureStats.State,
			},
			"store": map[string]interface{}{
				"status":       "running",
				"record_count": coordinatorStats.RecordCount,
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  engineStats.TotalRequests,
				"success_rate":    engineStats.SuccessRate,
				"active_requests": engineStats.ActiveRequests,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleView implements the /view endpoint
func (h *HTTPServer) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, h.coordinator.View())
}

// handleAnnotations implements the /annotations endpoint
func (h *HTTPServer) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := h.store.GetAll()
		h.metrics.SetAnnotationCount(len(records))

		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"total":       len(records),
			"annotations": records,
		})

	case http.MethodPost:
		var form annotation.FormData
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		record, err := h.coordinator.Save(form)
		if err != nil {
			if errors.Is(err, session.ErrIncompleteTranscription) {
				http.Error(w, "Transcription is not complete", http.StatusConflict)
				return
			}
			h.logger.Error("Failed to save annotation", slog.String("error", err.Error()))
			http.Error(w, "Failed to save annotation", http.StatusInternalServerError)
			return
		}

		h.metrics.RecordAnnotationSaved()
		h.metrics.SetAnnotationCount(len(h.store.GetAll()))
		h.writeJSON(w, http.StatusOK, record)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAnnotationDetail implements the /annotations/{id} endpoint
func (h *HTTPServer) handleAnnotationDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/annotations/")
	if id == "" {
		http.Error(w, "Annotation ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, ok := h.store.GetByID(id)
		if !ok {
			http.Error(w, "Annotation not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		if _, ok := h.store.GetByID(id); !ok {
			http.Error(w, "Annotation not found", http.StatusNotFound)
			return
		}

		if err := h.coordinator.Delete(id); err != nil {
			h.logger.Error("Failed to delete annotation", slog.String("error", err.Error()))
			http.Error(w, "Failed to delete annotation", http.StatusInternalServerError)
			return
		}

		h.metrics.RecordAnnotationDeleted()
		h.metrics.SetAnnotationCount(len(h.store.GetAll()))
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSelection implements the /selection endpoint. Posting an empty id
// clears the cursor.
func (h *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if body.ID == "" {
		h.coordinator.Deselect()
		h.writeJSON(w, http.StatusOK, h.coordinator.View())
		return
	}

	if err := h.coordinator.Select(body.ID); err != nil {
		if errors.Is(err, session.ErrUnknownAnnotation) {
			http.Error(w, "Annotation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to select annotation", slog.String("error", err.Error()))
		http.Error(w, "Failed to select annotation", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, h.coordinator.View())
}

// handleRecording implements the /recording status endpoint
func (h *HTTPServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.capture.GetStats()
	status := map[string]interface{}{
		"state":           stats.State,
		"elapsed_seconds": stats.ElapsedSeconds,
	}
	if recording := h.capture.LastRecording(); recording != nil {
		status["last_recording"] = map[string]interface{}{
			"mime_type":        recording.MIMEType,
			"duration_seconds": recording.Duration.Seconds(),
			"size_bytes":       len(recording.Data),
		}
	}

	h.writeJSON(w, http.StatusOK, status)
}

// handleRecordingStart implements the /recording/start endpoint
func (h *HTTPServer) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.capture.Start(r.Context()); err != nil {
		h.metrics.RecordCaptureError()

		switch {
		case errors.Is(err, capture.ErrAlreadyRecording):
			http.Error(w, "Recording already in progress", http.StatusConflict)
		case errors.Is(err, capture.ErrDeviceUnavailable):
			http.Error(w, "Input device unavailable", http.StatusServiceUnavailable)
		case errors.Is(err, capture.ErrNoSupportedFormat):
			http.Error(w, "No supported container format", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Failed to start recording", slog.String("error", err.Error()))
			http.Error(w, "Failed to start recording", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.RecordRecordingStarted()
	h.writeJSON(w, http.StatusOK, h.capture.GetStats())
}

// handleRecordingStop implements the /recording/stop endpoint
func (h *HTTPServer) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.capture.Stop(); err != nil {
		h.logger.Error("Failed to stop recording", slog.String("error", err.Error()))
		http.Error(w, "Failed to stop recording", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, h.capture.GetStats())
}

// handleRecordingFragment accepts one audio fragment for the recording in
// progress. The body is the raw fragment bytes.
func (h *HTTPServer) handleRecordingFragment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.ingest == nil {
		http.Error(w, "Fragment ingest not available", http.StatusServiceUnavailable)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxFragmentSize+1))
	if err != nil {
		http.Error(w, "Failed to read fragment", http.StatusBadRequest)
		return
	}
	if len(data) > maxFragmentSize {
		http.Error(w, "Fragment too large", http.StatusRequestEntityTooLarge)
		return
	}

	if !h.ingest.Push(data) {
		http.Error(w, "No recording in progress", http.StatusConflict)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"accepted": len(data)})
}

// handleRecordingAudio serves the last finalized recording blob
func (h *HTTPServer) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recording := h.capture.LastRecording()
	if recording == nil {
		http.Error(w, "No finalized recording", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", recording.MIMEType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(recording.Data)))
	w.Write(recording.Data)
}

// currentTranscription resolves the transcription the view is showing.
func (h *HTTPServer) currentTranscription() (annotation.Transcription, bool) {
	view := h.coordinator.View()
	if view.Transcription == nil {
		return annotation.Transcription{}, false
	}
	return *view.Transcription, true
}

// handleExportText implements the /export/text endpoint
func (h *HTTPServer) handleExportText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcription, ok := h.currentTranscription()
	if !ok {
		http.Error(w, "No transcription to export", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", export.TextContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.TextFilename))
	fmt.Fprint(w, export.Text(transcription))
}

// handleExportJSON implements the /export/json endpoint
func (h *HTTPServer) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcription, ok := h.currentTranscription()
	if !ok {
		http.Error(w, "No transcription to export", http.StatusNotFound)
		return
	}

	data, err := export.JSON(transcription)
	if err != nil {
		h.logger.Error("Failed to render transcript", slog.String("error", err.Error()))
		http.Error(w, "Failed to render transcript", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", export.JSONContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.JSONFilename))
	w.Write(data)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"capture": map[string]interface{}{
			"formats": h.config.Capture.Formats,
		},
		"storage": map[string]interface{}{
			"path": h.config.Storage.Path,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"language":       h.config.Transcription.Language,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":        uptime.String(),
		"timestamp":     time.Now().UTC(),
		"capture":       h.capture.GetStats(),
		"session":       h.coordinator.GetStats(),
		"transcription": h.engine.GetStats(),
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Whisper Web Annotation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /view":                "Current workflow view",
			"GET /annotations":         "List all annotation records",
			"POST /annotations":        "Save the current form as a record",
			"GET /annotations/{id}":    "Get one annotation record",
			"DELETE /annotations/{id}": "Delete an annotation record",
			"POST /selection":          "Select a record, or clear with an empty id",
			"GET /recording":           "Capture session status",
			"POST /recording/start":    "Start recording",
			"POST /recording/stop":     "Stop and finalize the recording",
			"POST /recording/fragment": "Push one audio fragment while recording",
			"GET /recording/audio":     "Download the last finalized recording",
			"GET /export/text":         "Export the current transcript as text",
			"GET /export/json":         "Export the current transcript as JSON",
			"GET /config":              "Get service configuration",
			"GET /stats":               "Get service statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
