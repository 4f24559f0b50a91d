// Package mazetwin is an in-memory fake of the MazeRunner management API, used
// to exercise the SDK and the tools built on it without an appliance.
package mazetwin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

const apiPrefix = "/api/v1.0"

const (
	resourceDecoy           = mazerunner.ResourceDecoy
	resourceService         = mazerunner.ResourceService
	resourceBreadcrumb      = mazerunner.ResourceBreadcrumb
	resourceDeploymentGroup = mazerunner.ResourceDeploymentGroup
	resourceAlert           = mazerunner.ResourceAlert
	resourceEndpoint        = mazerunner.ResourceEndpoint
	resourceBackgroundTask  = mazerunner.ResourceBackgroundTask
	resourceAlertPolicy     = mazerunner.ResourceAlertPolicy
	resourceCIDRMapping     = mazerunner.ResourceCIDRMapping
	resourceActiveSOC       = mazerunner.ResourceActiveSOC
	resourceAuditLog        = mazerunner.ResourceAuditLog
	resourceForensicPuller  = mazerunner.ResourceForensicPuller
)

// Default credentials accepted by a twin.
const (
	DefaultKeyID  = "twin-key"
	DefaultSecret = "twin-secret"
)

// Twin holds the whole fake appliance state.
type Twin struct {
	mu       sync.Mutex
	keyID    string
	secret   string
	username string
	pageSize int
	clock    func() time.Time
	schemas  *mazerunner.Registry
	tables   map[string]*table
	soc      []SOCSubmission
	router   *chi.Mux
}

// Option configures a Twin.
type Option func(*Twin)

// WithCredentials sets the accepted API key pair.
func WithCredentials(keyID, secret string) Option {
	return func(tw *Twin) {
		tw.keyID = keyID
		tw.secret = secret
	}
}

// WithPageSize sets the page size of paginated listings.
func WithPageSize(n int) Option {
	return func(tw *Twin) { tw.pageSize = n }
}

// WithClock replaces the time source used for audit records.
func WithClock(now func() time.Time) Option {
	return func(tw *Twin) { tw.clock = now }
}

// New creates a twin seeded with the built-in deployment group and alert
// policies.
func New(opts ...Option) *Twin {
	tw := &Twin{
		keyID:    DefaultKeyID,
		secret:   DefaultSecret,
		username: "api",
		pageSize: 25,
		schemas:  mazerunner.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(tw)
	}
	tw.Reset()

	tw.router = chi.NewRouter()
	tw.Routes(tw.router)
	return tw
}

// NewServer starts a plain HTTP server for tw.
func NewServer(opts ...Option) (*Twin, *httptest.Server) {
	tw := New(opts...)
	return tw, httptest.NewServer(tw)
}

// ServeHTTP implements http.Handler.
func (tw *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tw.router.ServeHTTP(w, r)
}

// ClientConfig returns SDK settings that reach a twin served at baseURL.
func (tw *Twin) ClientConfig(baseURL string) mazerunner.Config {
	return mazerunner.Config{
		BaseURL:   baseURL,
		APIKey:    tw.keyID,
		APISecret: tw.secret,
		Timeout:   5 * time.Second,
	}
}

// Routes mounts the MazeRunner v1.0 API.
func (tw *Twin) Routes(r chi.Router) {
	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(tw.authenticate)

		r.Get("/", tw.discovery)
		r.HandleFunc("/{resource}/", tw.handleCollection)
		r.HandleFunc("/{resource}/{seg}/", tw.handleSegment)
		r.HandleFunc("/{resource}/{id}/{action}/", tw.handleItemAction)
	})
}

// Reset clears all state and re-seeds the defaults.
func (tw *Twin) Reset() {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.tables = make(map[string]*table)
	for _, name := range tw.schemas.Names() {
		tw.tables[name] = newTable()
	}
	tw.soc = nil

	tw.tables[resourceDeploymentGroup].insert(Object{
		"name":        "All Breadcrumbs",
		"description": "Contains all breadcrumbs",
		"persist":     true,
	})
	for _, alertType := range []string{"code", "http", "share", "ssh", "rdp"} {
		tw.tables[resourceAlertPolicy].insert(Object{
			"alert_type":     alertType,
			"to_status":      defaultPolicyStatus,
			"default_status": defaultPolicyStatus,
		})
	}
}

const defaultPolicyStatus = mazerunner.PolicyAlert

func (tw *Twin) discovery(w http.ResponseWriter, r *http.Request) {
	urls := make(map[string]string)
	for _, name := range tw.schemas.Names() {
		urls[name] = baseURL(r) + apiPrefix + "/" + name + "/"
	}
	writeJSON(w, http.StatusOK, urls)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	out := make(map[string][]string, len(fields))
	for k, v := range fields {
		out[k] = []string{v}
	}
	writeJSON(w, http.StatusBadRequest, out)
}

func writeFile(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func itoa(n int) string { return strconv.Itoa(n) }
