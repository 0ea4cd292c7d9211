// Package httpapi serves the interstitial page, the options page and the
// JSON API used to edit lists and request unblocks.
package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/metrics"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/repos/lists"
	"github.com/haukened/navguard/internal/guard/services/guard"
)

const maxBodyBytes = 64 << 10

// MessageWhitelist is the only inbound message type.
const MessageWhitelist = "whitelist"

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Options wires the HTTP handler. Editor is required; Decider, Health and
// Gatherer enable their endpoints when set.
type Options struct {
	Editor   ListEditor
	Decider  guard.Decider
	Health   HealthFunc
	Gatherer prometheus.Gatherer
	Logger   log.Logger
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

type handler struct {
	editor  ListEditor
	decider guard.Decider
	health  HealthFunc
	logger  log.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

// Message is an inbound request from the interstitial page.
type Message struct {
	Type string `json:"type"`
	Site string `json:"site"`
}

// MessageReply acknowledges a Message.
type MessageReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ListReply carries one list.
type ListReply struct {
	Key     domain.ListKey `json:"key"`
	Entries domain.List    `json:"entries"`
}

// AddRequest appends a site to a list.
type AddRequest struct {
	Site string `json:"site"`
}

// DecideRequest is a dry-run evaluation of a URL.
type DecideRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type errorReply struct {
	Error string `json:"error"`
}

// NewHandler builds the router.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Editor == nil {
		return nil, fmt.Errorf("list editor is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	h := &handler{
		editor:  opts.Editor,
		decider: opts.Decider,
		health:  opts.Health,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}

	r := mux.NewRouter()
	r.Use(h.withRequestMetrics)

	r.HandleFunc("/blocked", h.blockedPage).Methods(http.MethodGet)
	r.HandleFunc("/", h.optionsPage).Methods(http.MethodGet)
	r.HandleFunc("/options", h.optionsPage).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// registered on the root router: a subrouter reports a method mismatch as 404
	r.HandleFunc("/api/message", h.message).Methods(http.MethodPost)
	r.HandleFunc("/api/lists/{key}", h.getList).Methods(http.MethodGet)
	r.HandleFunc("/api/lists/{key}", h.addToList).Methods(http.MethodPost)
	r.HandleFunc("/api/lists/{key}/{index}", h.removeFromList).Methods(http.MethodDelete)
	if opts.Decider != nil {
		r.HandleFunc("/api/decide", h.decide).Methods(http.MethodPost)
	}
	return r, nil
}

// withRequestMetrics records status and latency per matched route.
func (h *handler) withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.ObserveHTTP(route, m.Code, m.Duration)
		h.logger.Debug(map[string]any{
			"method":   r.Method,
			"route":    route,
			"status":   m.Code,
			"duration": m.Duration.String(),
		}, "HTTP request")
	})
}

func (h *handler) blockedPage(w http.ResponseWriter, r *http.Request) {
	page := domain.BlockPageFromQuery(r.URL.Query())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pages.ExecuteTemplate(w, "blocked.html", page); err != nil {
		h.logger.Error(map[string]any{"error": err.Error()}, "Render block page failed")
	}
}

type optionsList struct {
	Key     domain.ListKey
	Title   string
	Entries domain.List
}

func (h *handler) optionsPage(w http.ResponseWriter, r *http.Request) {
	var data struct{ Lists []optionsList }
	for _, key := range domain.ListKeys() {
		entries, err := h.editor.List(r.Context(), key)
		if err != nil {
			h.writeError(w, err)
			return
		}
		title := "Blocked sites"
		if key == domain.Whitelist {
			title = "Allowed sites"
		}
		data.Lists = append(data.Lists, optionsList{Key: key, Title: title, Entries: entries})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, "options.html", data); err != nil {
		h.logger.Error(map[string]any{"error": err.Error()}, "Render options page failed")
	}
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// message handles {type:"whitelist", site} from the interstitial page. The
// reply is sent after the whitelist write is durable.
func (h *handler) message(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := decodeJSON(r, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageReply{Error: err.Error()})
		return
	}
	if msg.Type != MessageWhitelist {
		writeJSON(w, http.StatusBadRequest, MessageReply{Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}
	entries, err := h.editor.RequestWhitelist(r.Context(), msg.Site)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			h.logger.Error(map[string]any{"site": msg.Site, "error": err.Error()}, "Whitelist request failed")
		}
		writeJSON(w, status, MessageReply{Error: err.Error()})
		return
	}
	h.metrics.SetListEntries(string(domain.Whitelist), len(entries))
	h.logger.Info(map[string]any{"site": msg.Site}, "Site whitelisted from block page")
	writeJSON(w, http.StatusOK, MessageReply{Success: true})
}

func (h *handler) getList(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseListKey(mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.editor.List(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListReply{Key: key, Entries: entries})
}

func (h *handler) addToList(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseListKey(mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req AddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: err.Error()})
		return
	}
	entries, err := h.editor.Add(r.Context(), key, req.Site)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.SetListEntries(string(key), len(entries))
	writeJSON(w, http.StatusOK, ListReply{Key: key, Entries: entries})
}

func (h *handler) removeFromList(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := domain.ParseListKey(vars["key"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: fmt.Sprintf("invalid index %q", vars["index"])})
		return
	}
	entries, err := h.editor.Remove(r.Context(), key, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.SetListEntries(string(key), len(entries))
	writeJSON(w, http.StatusOK, ListReply{Key: key, Entries: entries})
}

// decide evaluates a URL without redirecting anything.
func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "url is required"})
		return
	}
	nav := domain.Navigation{
		ID:        uuid.NewString(),
		TabID:     "api",
		MainFrame: true,
		URL:       req.URL,
		Title:     req.Title,
		StartedAt: h.clock.Now(),
	}
	writeJSON(w, http.StatusOK, h.decider.Decide(r.Context(), nav))
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error(map[string]any{"error": err.Error()}, "List operation failed")
	}
	writeJSON(w, status, errorReply{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownList):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIndexOutOfRange), errors.Is(err, lists.ErrEmptyPattern):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("error decoding body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
