package mazerunner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Collection is a view over all resources of one type, optionally narrowed by
// query filters. It never caches server state; every call asks the server.
// Views of one resource type share a record of the ids deleted through them,
// which every handle they issued consults.
type Collection struct {
	client   *Client
	schema   Schema
	url      string
	query    url.Values
	deleted  *tombstones
	unusable error
}

// tombstones holds the ids deleted through the SDK. The server never reuses an
// id. Handles are not retained, so listing never grows it.
type tombstones struct {
	mu  sync.RWMutex
	ids sets.Set[int]
}

func (t *tombstones) add(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids.Insert(id)
}

func (t *tombstones) has(id int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ids.Has(id)
}

func (t *tombstones) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ids.Len()
}

func newCollection(c *Client, schema Schema, baseURL string) *Collection {
	return &Collection{
		client:  c,
		schema:  schema,
		url:     baseURL,
		deleted: &tombstones{ids: sets.New[int]()},
	}
}

// Schema returns the resource type this collection serves.
func (c *Collection) Schema() Schema { return c.schema }

// URL returns the collection endpoint.
func (c *Collection) URL() string { return c.url }

// Query returns a copy of the filters applied to every listing request.
func (c *Collection) Query() url.Values { return cloneValues(c.query) }

// WithQuery returns a new view with query merged over the current filters.
// Handles issued by either view are invalidated by Delete on any of them.
func (c *Collection) WithQuery(query url.Values) *Collection {
	merged := cloneValues(c.query)
	if merged == nil {
		merged = url.Values{}
	}
	for k, v := range query {
		merged[k] = append([]string(nil), v...)
	}
	return &Collection{
		client:   c.client,
		schema:   c.schema,
		url:      c.url,
		query:    merged,
		deleted:  c.deleted,
		unusable: c.unusable,
	}
}

type page struct {
	Count   int              `json:"count"`
	Next    string           `json:"next"`
	Results []map[string]any `json:"results"`
}

// Len returns the number of resources matching the view.
func (c *Collection) Len(ctx context.Context) (int, error) {
	if err := c.supports(c.schema.Listable, "list"); err != nil {
		return 0, err
	}
	if !c.schema.Paginated {
		var items []map[string]any
		if err := c.client.call(ctx, Request{Path: c.url, Query: c.query}, &items); err != nil {
			return 0, err
		}
		return len(items), nil
	}
	var p page
	if err := c.client.call(ctx, Request{Path: c.url, Query: c.query}, &p); err != nil {
		return 0, err
	}
	return p.Count, nil
}

// List fetches every page and returns one handle per resource.
func (c *Collection) List(ctx context.Context) ([]*Entity, error) {
	it := c.Pages()
	var all []*Entity
	for it.Next(ctx) {
		all = append(all, it.Page()...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Pages returns an iterator over the result pages of the view.
func (c *Collection) Pages() *PageIterator {
	return &PageIterator{coll: c}
}

// PageIterator walks a listing one server page at a time.
//
//	it := coll.Pages()
//	for it.Next(ctx) {
//		for _, e := range it.Page() { ... }
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	coll    *Collection
	next    string
	started bool
	done    bool
	count   int
	page    []*Entity
	err     error
}

// Next fetches the following page. It returns false when the listing is
// exhausted or a request failed.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}
	c := it.coll
	if err := c.supports(c.schema.Listable, "list"); err != nil {
		it.err = err
		return false
	}

	path := c.url
	if it.started {
		if it.next == "" {
			it.done = true
			it.page = nil
			return false
		}
		path = it.next
	}
	it.started = true

	if !c.schema.Paginated {
		var items []map[string]any
		if err := c.client.call(ctx, Request{Path: path, Query: c.query}, &items); err != nil {
			it.err = err
			return false
		}
		it.page = c.wrapAll(items)
		it.count = len(items)
		it.next = ""
		return true
	}

	var p page
	if err := c.client.call(ctx, Request{Path: path, Query: c.query}, &p); err != nil {
		it.err = err
		return false
	}
	it.page = c.wrapAll(p.Results)
	it.count = p.Count
	it.next = p.Next
	return true
}

// Page returns the handles of the current page.
func (it *PageIterator) Page() []*Entity { return it.page }

// Count returns the total reported by the server with the last page.
func (it *PageIterator) Count() int { return it.count }

// Err returns the error that stopped the iteration, if any.
func (it *PageIterator) Err() error { return it.err }

// Get fetches one resource by id.
func (c *Collection) Get(ctx context.Context, id int) (*Entity, error) {
	if err := c.supports(c.schema.Gettable, "get"); err != nil {
		return nil, err
	}
	var data map[string]any
	if err := c.client.call(ctx, Request{Path: c.itemURL(id), Query: c.query}, &data); err != nil {
		return nil, err
	}
	e := c.wrap(data)
	e.loaded = true
	return e, nil
}

// Params returns the server's description of acceptable field values.
func (c *Collection) Params(ctx context.Context) (map[string]any, error) {
	if err := c.supports(c.schema.HasParams, "params"); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.client.call(ctx, Request{Path: c.url + "params/"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create validates required fields locally, then creates the resource.
func (c *Collection) Create(ctx context.Context, fields map[string]any) (*Entity, error) {
	return c.CreateWithFiles(ctx, fields, nil)
}

// CreateWithFiles is Create with file uploads, keyed by form field name.
func (c *Collection) CreateWithFiles(ctx context.Context, fields map[string]any, files map[string]string) (*Entity, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if !c.schema.Creatable {
		return nil, &ValidationError{Resource: c.schema.Kind, Err: ErrNotCreatable}
	}
	if err := c.validateRequired(fields); err != nil {
		return nil, err
	}

	var data map[string]any
	req := Request{Method: http.MethodPost, Path: c.url, Body: fields, Files: files}
	if err := c.client.call(ctx, req, &data); err != nil {
		return nil, err
	}
	e := c.wrap(data)
	e.loaded = true

	c.client.log.WithField("resource", c.schema.Name).WithField("id", e.id).Debug("Created resource")
	return e, nil
}

func (c *Collection) validateRequired(fields map[string]any) error {
	if len(c.schema.Required) == 0 {
		return nil
	}
	keys := make([]*validation.KeyRules, 0, len(c.schema.Required))
	for _, name := range c.schema.Required {
		keys = append(keys, validation.Key(name, validation.Required))
	}
	if fields == nil {
		fields = map[string]any{}
	}
	if err := validation.Validate(fields, validation.Map(keys...).AllowExtraKeys()); err != nil {
		return &ValidationError{Resource: c.schema.Kind, Err: err}
	}
	return nil
}

// Delete removes the resource with the given id and invalidates every handle
// to it issued by this collection.
func (c *Collection) Delete(ctx context.Context, id int) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.schema.Deletable {
		return &ValidationError{Resource: c.schema.Kind, Err: ErrNotDeletable}
	}
	e := newEntity(c.client, c.schema, c, map[string]any{"id": id, "url": c.itemURL(id)})
	return e.Delete(ctx)
}

func (c *Collection) forget(id int) { c.deleted.add(id) }

func (c *Collection) itemURL(id int) string {
	return c.url + strconv.Itoa(id) + "/"
}

func (c *Collection) wrap(data map[string]any) *Entity {
	return newEntity(c.client, c.schema, c, data)
}

func (c *Collection) wrapAll(items []map[string]any) []*Entity {
	out := make([]*Entity, 0, len(items))
	for _, item := range items {
		out = append(out, c.wrap(item))
	}
	return out
}

// check reports why the view cannot be used, if it cannot.
func (c *Collection) check() error { return c.unusable }

func (c *Collection) supports(ok bool, op string) error {
	if err := c.check(); err != nil {
		return err
	}
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s on %s", ErrNotSupported, op, c.schema.Kind)
}

// action sends a collection-level request and decodes the JSON answer into out
// when out is not nil.
func (c *Collection) action(ctx context.Context, method, suffix string, query url.Values, body, out any) error {
	if err := c.check(); err != nil {
		return err
	}
	req := Request{Method: method, Path: c.url + suffix, Query: query, Body: body}
	if out == nil {
		req.Raw = true
		_, err := c.client.do(ctx, req)
		return err
	}
	return c.client.call(ctx, req, out)
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
