package mazerunner

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
)

// APIRoot is the discovery document listing every resource endpoint.
const APIRoot = "/api/v1.0/"

// Config for a MazeRunner API client
type Config struct {
	// Host is the management server address, optionally with a port.
	Host      string
	APIKey    string
	APISecret string
	// Certificate is the path of the server CA certificate (PEM). When empty the
	// server certificate is not verified.
	Certificate string
	Timeout     time.Duration
	// BaseURL overrides "https://<Host>", e.g. to reach a plain HTTP test server.
	BaseURL string
}

// Validate checks that the connection settings are usable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Host, validation.When(c.BaseURL == "", validation.Required)),
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.APISecret, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Option customizes a Client.
type Option func(*Client)

// WithRegistry replaces the default resource schemas.
func WithRegistry(r *Registry) Option {
	return func(c *Client) { c.registry = r }
}

// Client is the entry point to the MazeRunner API. It owns one authenticated
// session and hands out one collection per resource type.
type Client struct {
	transport *Transport
	registry  *Registry
	log       *logrus.Logger
	closed    atomic.Bool

	mu          sync.Mutex
	urls        map[string]string
	collections map[string]*Collection
}

// NewClient connects to MazeRunner and reads the resource table.
func NewClient(ctx context.Context, cfg Config, log *logrus.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Resource: "config", Err: err}
	}

	transport, err := NewTransport(cfg, log)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport:   transport,
		registry:    DefaultRegistry(),
		log:         log,
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(c)
	}

	var urls map[string]string
	if err := c.call(ctx, Request{Method: http.MethodGet, Path: APIRoot}, &urls); err != nil {
		return nil, fmt.Errorf("failed to discover API endpoints: %w", err)
	}
	c.urls = urls

	log.WithFields(logrus.Fields{
		"base_url":  transport.BaseURL(),
		"resources": len(urls),
	}).Debug("Connected to MazeRunner")

	return c, nil
}

// Close ends the session. Entities and collections obtained from the client
// fail with ErrClientClosed afterwards.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.httpClient.CloseIdleConnections()
	return nil
}

// Transport exposes the underlying transport for requests the SDK does not wrap.
func (c *Client) Transport() *Transport { return c.transport }

// Registry returns the schemas in use.
func (c *Client) Registry() *Registry { return c.registry }

// ResourceURLs returns a copy of the discovered resource table.
func (c *Client) ResourceURLs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.urls))
	for k, v := range c.urls {
		out[k] = v
	}
	return out
}

// Collection returns the session's collection for a registered resource type.
func (c *Client) Collection(name string) (*Collection, error) {
	schema, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.collection(schema), nil
}

func (c *Client) collection(schema Schema) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if coll, ok := c.collections[schema.Name]; ok {
		return coll
	}
	coll := newCollection(c, schema, c.urlLocked(schema.Name))
	c.collections[schema.Name] = coll
	return coll
}

// mustCollection serves the typed accessors. A type missing from a custom
// registry yields a view whose every request fails with the lookup error.
func (c *Client) mustCollection(name string) *Collection {
	coll, err := c.Collection(name)
	if err != nil {
		coll = newCollection(c, Schema{Name: name, Kind: name}, c.resourceURL(name))
		coll.unusable = err
	}
	return coll
}

func (c *Client) resourceURL(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urlLocked(name)
}

// urlLocked falls back to the conventional path for resources missing from the
// discovery document.
func (c *Client) urlLocked(name string) string {
	if u, ok := c.urls[name]; ok && u != "" {
		return u
	}
	return c.transport.baseURL.JoinPath(APIRoot, name).String() + "/"
}

// call performs req and decodes its JSON answer into out.
func (c *Client) call(ctx context.Context, req Request, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// do performs req without decoding.
func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.transport.Do(ctx, req)
}

// Decoys returns the decoy collection.
func (c *Client) Decoys() *DecoyCollection {
	return &DecoyCollection{c.mustCollection(ResourceDecoy)}
}

// Services returns the service collection.
func (c *Client) Services() *ServiceCollection {
	return &ServiceCollection{c.mustCollection(ResourceService)}
}

// Breadcrumbs returns the breadcrumb collection.
func (c *Client) Breadcrumbs() *BreadcrumbCollection {
	return &BreadcrumbCollection{c.mustCollection(ResourceBreadcrumb)}
}

// DeploymentGroups returns the deployment group collection.
func (c *Client) DeploymentGroups() *DeploymentGroupCollection {
	return &DeploymentGroupCollection{c.mustCollection(ResourceDeploymentGroup)}
}

// Alerts returns the alert collection with the default filters.
func (c *Client) Alerts() *AlertCollection {
	return newAlertCollection(c.mustCollection(ResourceAlert), AlertFilter{})
}

// Endpoints returns the endpoint collection.
func (c *Client) Endpoints() *EndpointCollection {
	return newEndpointCollection(c.mustCollection(ResourceEndpoint), EndpointFilter{})
}

// BackgroundTasks returns the running background tasks.
func (c *Client) BackgroundTasks() *BackgroundTaskCollection {
	return newBackgroundTaskCollection(c.mustCollection(ResourceBackgroundTask), true)
}

// AlertPolicies returns the alert policy collection.
func (c *Client) AlertPolicies() *AlertPolicyCollection {
	return &AlertPolicyCollection{c.mustCollection(ResourceAlertPolicy)}
}

// CIDRMappings returns the CIDR mapping collection.
func (c *Client) CIDRMappings() *CIDRMappingCollection {
	return &CIDRMappingCollection{c.mustCollection(ResourceCIDRMapping)}
}

// ActiveSOCEvents returns the "SOC via API" event sink.
func (c *Client) ActiveSOCEvents() *ActiveSOCEventCollection {
	return &ActiveSOCEventCollection{c.mustCollection(ResourceActiveSOC)}
}

// AuditLog returns the audit log.
func (c *Client) AuditLog() *AuditLogCollection {
	return newAuditLogCollection(c.mustCollection(ResourceAuditLog), AuditLogFilter{})
}

// ForensicPuller returns the on-demand forensic puller.
func (c *Client) ForensicPuller() *ForensicPuller {
	return &ForensicPuller{c.mustCollection(ResourceForensicPuller)}
}
