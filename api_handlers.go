package main

import (
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"

	"streamkey-relay/work/activity"
	"streamkey-relay/work/config"
	"streamkey-relay/work/credentials"
	"streamkey-relay/work/errs"
	"streamkey-relay/work/logger"
	"streamkey-relay/work/metrics"
	"streamkey-relay/work/middleware"
	"streamkey-relay/work/relay"
	"streamkey-relay/work/utils"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

var (
	// startTime is used for the uptime reported by /api/health and /api/stats.
	startTime = time.Now()

	// apiRequests counts every request that reached an /api handler.
	apiRequests = xsync.NewCounter()

	httpLog = logger.New("http")
)

// app bundles what the handlers need.
type app struct {
	cfg      *config.Config
	creds    *credentials.Store
	attempts *activity.Log
	relay    *relay.Service
	assets   fs.FS
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// TokensResponse answers GET /api/bearer-tokens.
type TokensResponse struct {
	Success     bool                     `json:"success"`
	Tokens      []credentials.Credential `json:"tokens"`
	LastUpdated string                   `json:"lastUpdated"`
}

// SaveTokensResponse answers POST /api/save-bearer-tokens.
type SaveTokensResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	LastUpdated string `json:"lastUpdated"`
}

// ExtractedResponse answers a start-stream call whose response carried RTMP data.
type ExtractedResponse struct {
	Success         bool   `json:"success"`
	Account         string `json:"account"`
	RTMP            string `json:"rtmp"`
	Key             string `json:"key"`
	FormattedOutput string `json:"formatted_output"`
	FullResponse    any    `json:"full_response"`
	Message         string `json:"message"`
}

// RawResponse answers a start-stream call whose response had nothing to extract.
type RawResponse struct {
	Success    bool   `json:"success"`
	Account    string `json:"account"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Note       string `json:"note"`
}

// LogsResponse answers GET /api/stream-logs.
type LogsResponse struct {
	Success     bool             `json:"success"`
	Logs        []activity.Entry `json:"logs"`
	Total       int              `json:"total"`
	LastUpdated string           `json:"lastUpdated"`
}

// HealthResponse answers GET /api/health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

// StatsResponse answers GET /api/stats.
type StatsResponse struct {
	Success            bool   `json:"success"`
	Uptime             string `json:"uptime"`
	APIRequests        int64  `json:"apiRequests"`
	ConfiguredAccounts int    `json:"configuredAccounts"`
	RetainedAttempts   int    `json:"retainedAttempts"`
	SuccessfulAttempts int    `json:"successfulAttempts"`
	Version            string `json:"version"`
}

// setupRoutes registers the API, metrics and UI routes on router.
func setupRoutes(router *mux.Router, a *app) {
	router.HandleFunc("/api/bearer-tokens", corsMiddleware(middleware.GzipMiddleware(handleGetTokens(a)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/save-bearer-tokens", corsMiddleware(handleSaveTokens(a))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/start-stream", corsMiddleware(handleStartStream(a))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/stream-logs", corsMiddleware(middleware.GzipMiddleware(handleGetStreamLogs(a)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/health", corsMiddleware(handleHealth)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/stats", corsMiddleware(middleware.GzipMiddleware(handleGetStats(a)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/diagnostics", corsMiddleware(middleware.GzipMiddleware(handleGetDiagnostics))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/diagnostics", corsMiddleware(handleClearDiagnostics)).Methods("DELETE", "OPTIONS")

	if a.cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(a.assets))))
	router.HandleFunc("/", handleIndex(a)).Methods("GET")
}

// corsMiddleware allows the UI to be hosted elsewhere and answers preflights.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiRequests.Inc()
		httpLog.Debug("{http - corsMiddleware} %s %s", r.Method, r.URL.Path)

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func handleIndex(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, a.assets, "index.html")
	}
}

func handleGetTokens(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := a.creds.ReadAll()
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TokensResponse{
			Success:     true,
			Tokens:      f.Tokens,
			LastUpdated: f.LastUpdated,
		})
	}
}

// handleSaveTokens replaces the whole credential set. The body is decoded in
// two steps so a wrong record count and a malformed record report different
// errors.
func handleSaveTokens(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := decodeTokens(r)
		if err != nil {
			metrics.CredentialSaves.WithLabelValues("invalid").Inc()
			writeError(w, err)
			return
		}

		stamp, err := a.creds.WriteAll(records)
		if err != nil {
			if errs.IsInvalidInput(err) {
				metrics.CredentialSaves.WithLabelValues("invalid").Inc()
			} else {
				metrics.CredentialSaves.WithLabelValues("error").Inc()
				httpLog.Error("{http - handleSaveTokens} failed to save credentials: %v", err)
			}
			writeError(w, err)
			return
		}

		metrics.CredentialSaves.WithLabelValues("ok").Inc()
		httpLog.Info("{http - handleSaveTokens} bearer tokens configuration saved")
		writeJSON(w, http.StatusOK, SaveTokensResponse{
			Success:     true,
			Message:     "Bearer tokens configuration saved successfully!",
			LastUpdated: stamp,
		})
	}
}

func decodeTokens(r *http.Request) ([]credentials.Credential, error) {
	countErr := errs.InvalidInput("Invalid tokens configuration - must have exactly %d tokens", credentials.SlotCount)

	var body struct {
		Tokens json.RawMessage `json:"tokens"`
	}
	if err := readJSON(r, &body); err != nil {
		return nil, countErr
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body.Tokens, &raw); err != nil || len(raw) != credentials.SlotCount {
		return nil, countErr
	}

	records := make([]credentials.Credential, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal(item, &records[i]); err != nil {
			return nil, errs.InvalidInput("Invalid token structure")
		}
	}
	return records, nil
}

func handleStartStream(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req relay.Request
		if err := readJSON(r, &req); err != nil {
			writeError(w, errs.InvalidInput("Invalid request body"))
			return
		}

		out, err := a.relay.Start(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		if out.Found() {
			writeJSON(w, http.StatusOK, ExtractedResponse{
				Success:         true,
				Account:         out.Account,
				RTMP:            out.Result.RTMPServer,
				Key:             out.Result.StreamKey,
				FormattedOutput: out.Result.Formatted,
				FullResponse:    out.Payload,
				Message:         relay.MsgExtracted,
			})
			return
		}

		writeJSON(w, http.StatusOK, RawResponse{
			Success:    true,
			Account:    out.Account,
			StatusCode: out.StatusCode,
			Data:       out.Payload,
			Message:    relay.MsgNoMatch,
			Note:       relay.NoteNoMatch,
		})
	}
}

func handleGetStreamLogs(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := a.cfg.RecentLogs
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		recent, err := a.attempts.ReadRecent(limit)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, LogsResponse{
			Success:     true,
			Logs:        recent.Entries,
			Total:       recent.Total,
			LastUpdated: recent.LastUpdated,
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(activity.TimeFormat),
		Uptime:    time.Since(startTime).Seconds(),
	})
}

func handleGetStats(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := StatsResponse{
			Success:     true,
			Uptime:      utils.FormatDuration(time.Since(startTime)),
			APIRequests: apiRequests.Value(),
			Version:     Version,
		}

		if f, err := a.creds.ReadAll(); err == nil {
			for _, c := range f.Tokens {
				if c.Usable() {
					stats.ConfiguredAccounts++
				}
			}
		} else {
			httpLog.Warn("{http - handleGetStats} credentials unavailable: %v", err)
		}

		if recent, err := a.attempts.ReadRecent(a.cfg.LogRetention); err == nil {
			stats.RetainedAttempts = recent.Total
			for _, e := range recent.Entries {
				if e.Success {
					stats.SuccessfulAttempts++
				}
			}
		} else {
			httpLog.Warn("{http - handleGetStats} stream logs unavailable: %v", err)
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logger.Recent())
}

func handleClearDiagnostics(w http.ResponseWriter, r *http.Request) {
	logger.ClearRecent()
	httpLog.Info("{http - handleClearDiagnostics} diagnostics cleared via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": errs.Success})
}

func readJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return errors.Wrap(err, "read request body")
	}
	return json.Unmarshal(data, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		httpLog.Error("{http - writeJSON} failed to encode response: %v", err)
	}
}

// writeError maps err onto the API's error body. Upstream failures carry the
// platform's status code and body when there was a response.
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: errs.Msg(err)}

	var upErr *errs.UpstreamError
	if errors.As(err, &upErr) && upErr.HasStatus() {
		resp.StatusCode = upErr.StatusCode
		resp.Data = upErr.Body
	}

	writeJSON(w, errs.HTTPStatus(err), resp)
}
