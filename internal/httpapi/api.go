// Package httpapi is the HTTP surface of the service: authentication flow,
// identity/catalog CRUD, and grant management. Handlers translate the
// service-level sentinel errors into status codes; all responses are JSON.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"backoffice.id/internal/auth"
	"backoffice.id/internal/obs"
	"backoffice.id/internal/rbac"
)

const maxRequestBody = 1 << 20

// Pinger is the liveness contract of the session cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores before the service reports ready.
type ReadyProbe struct {
	DB    *sql.DB
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		if err := rp.Cache.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	rbac       *rbac.Service
	readyProbe ReadyProbe
	prefix     string
	version    string
}

// New wires every route. prefix optionally mounts the business routes under a
// path like "/api"; probes and metrics always stay at the root.
func New(authSvc *auth.Service, rbacSvc *rbac.Service, rp ReadyProbe, prefix, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		rbac:       rbacSvc,
		readyProbe: rp,
		prefix:     normalizePrefix(prefix),
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.handle("/auth/login", a.handleLogin)
	a.handle("/auth/refresh-token", a.handleRefreshToken)
	a.handle("/auth/logout", a.handleLogout)

	a.handle("/users", a.handleUsers)
	a.handle("/users/", a.handleUserResource)
	a.handle("/roles", a.handleRoles)
	a.handle("/roles/", a.handleRoleResource)
	a.handle("/groups", a.handleGroups)
	a.handle("/groups/", a.handleGroupResource)
	a.handle("/permissions", a.handlePermissions)
	a.handle("/permissions/", a.handlePermissionResource)
	a.handle("/permission-attributes", a.handleAttributes)
	a.handle("/permission-attributes/", a.handleAttributeResource)

	a.handle("/user-permissions", a.grantHandler(rbac.SubjectUser))
	a.handle("/role-permissions", a.grantHandler(rbac.SubjectRole))
	a.handle("/group-permissions", a.grantHandler(rbac.SubjectGroup))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

func (a *API) handle(path string, h http.HandlerFunc) {
	a.mux.HandleFunc(a.prefix+path, h)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxRequestBody)
	h = RateLimit(h, 50, 25)
	h = Logging(h)
	h = RequestID(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// trimRoute strips the mount prefix and the route base from the request path,
// returning the remaining segments.
func (a *API) trimRoute(path, base string) []string {
	path = strings.TrimPrefix(path, a.prefix)
	path = strings.TrimPrefix(path, base)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// --- probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "backoffice-id",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "backoffice-id",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
