package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// registerAddonRoutes adds one route-table entry per endpoint the addon
// declares, under "/servers/{workerId}{endpointPath}". Invoked by the
// registry on addon registration and on every cache refresh; re-adding
// an existing entry is a no-op.
func (g *Gateway) registerAddonRoutes(a *domain.Addon) {
	if !a.Enabled {
		return
	}
	g.routeMu.Lock()
	defer g.routeMu.Unlock()
	set, ok := g.routes[a.WorkerID]
	if !ok {
		set = make(map[string]struct{})
		g.routes[a.WorkerID] = set
	}
	for _, ep := range a.Endpoints {
		path := ep.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if _, exists := set[path]; !exists {
			set[path] = struct{}{}
			g.logger.Info("route registered",
				"worker_id", a.WorkerID, "addon", a.Name, "path", path)
		}
	}
}

func (g *Gateway) routeKnown(workerID, path string) bool {
	g.routeMu.RLock()
	defer g.routeMu.RUnlock()
	set, ok := g.routes[workerID]
	if !ok {
		return false
	}
	_, ok = set[path]
	return ok
}

// Handler returns the coordinator's HTTP surface: the proxy entry point
// plus the read-only management projections. Authentication, CORS and
// TLS belong to the hosting entry point, not here.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/servers/", g.handleProxy)
	mux.HandleFunc("/gateway/workers", g.handleWorkers)
	mux.HandleFunc("/gateway/workers/", g.handleWorkerAddons)
	mux.HandleFunc("/gateway/addons", g.handleAddons)
	mux.HandleFunc("/gateway/health", g.handleHealth)
	return mux
}

// handleProxy serves "/servers/{workerId}/{endpointPath}".
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/servers/")
	workerID, path, ok := strings.Cut(rest, "/")
	if !ok || workerID == "" || path == "" {
		g.errorResponse(w, http.StatusBadRequest, "expected /servers/{workerId}/{path}")
		return
	}
	path = "/" + path

	if !g.routeKnown(workerID, path) {
		g.errorResponse(w, http.StatusNotFound, "no such endpoint")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.errorResponse(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	call := Call{
		Method:      r.Method,
		Headers:     headers,
		QueryParams: query,
		Body:        string(body),
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			call.Priority = n
		}
	}

	g.writeResult(w, g.Proxy(r.Context(), workerID, path, call))
}

// writeResult renders a tagged Result. Success mirrors the worker's
// status, headers, body and content type; failure renders the generic
// error body for its status.
func (g *Gateway) writeResult(w http.ResponseWriter, res Result) {
	if !res.OK {
		g.errorResponse(w, res.FailStatus, res.FailMessage)
		return
	}
	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.StatusCode)
	io.WriteString(w, res.Body) //nolint:errcheck
}

func (g *Gateway) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	type workerView struct {
		*domain.Worker
		Available bool `json:"available"`
	}
	workers := g.registry.Workers()
	views := make([]workerView, 0, len(workers))
	for _, wk := range workers {
		views = append(views, workerView{
			Worker:    wk,
			Available: g.registry.Available(wk.ID),
		})
	}
	g.jsonResponse(w, http.StatusOK, views)
}

// handleWorkerAddons serves "/gateway/workers/{id}/addons".
func (g *Gateway) handleWorkerAddons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/gateway/workers/")
	workerID, tail, _ := strings.Cut(rest, "/")
	if workerID == "" || tail != "addons" {
		g.errorResponse(w, http.StatusBadRequest, "expected /gateway/workers/{id}/addons")
		return
	}
	g.jsonResponse(w, http.StatusOK, g.registry.WorkerAddons(workerID))
}

func (g *Gateway) handleAddons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g.jsonResponse(w, http.StatusOK, g.registry.Addons())
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"pending_futures": g.PendingCount(),
		"liveness_window": g.registry.LivenessWindow().String(),
		"time":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		g.logger.Error("encode response failed", "err", err)
	}
}

func (g *Gateway) errorResponse(w http.ResponseWriter, status int, msg string) {
	g.jsonResponse(w, status, map[string]string{"error": msg})
}
