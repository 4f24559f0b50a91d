package mazerunner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Entity is one remote resource instance. Its fields reflect the last fetch and
// go stale when the resource changes elsewhere; call Refresh to re-read them.
//
// An Entity is not safe for concurrent mutation.
type Entity struct {
	client *Client
	schema Schema
	coll   *Collection

	id      int
	url     string
	fields  map[string]any
	pending map[string]any
	loaded  bool
	deleted bool
}

func newEntity(c *Client, schema Schema, coll *Collection, data map[string]any) *Entity {
	e := &Entity{client: c, schema: schema, coll: coll}
	e.setFields(data)
	return e
}

func (e *Entity) setFields(data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	e.fields = data
	if id, ok := intValue(data["id"]); ok {
		e.id = id
	}
	if u, ok := data["url"].(string); ok && u != "" {
		e.url = u
	} else if e.url == "" && e.coll != nil && e.id != 0 {
		e.url = fmt.Sprintf("%s%d/", e.coll.url, e.id)
	}
}

// ID returns the server-assigned identifier.
func (e *Entity) ID() int { return e.id }

// URL returns the canonical address of the resource.
func (e *Entity) URL() string { return e.url }

// Kind returns the resource type name.
func (e *Entity) Kind() string { return e.schema.Kind }

// Deleted reports whether the entity was deleted through this SDK, by this
// handle or through a collection of its type.
func (e *Entity) Deleted() bool {
	return e.deleted || (e.coll != nil && e.id != 0 && e.coll.deleted.has(e.id))
}

// Field returns a cached field value without touching the server.
func (e *Entity) Field(name string) (any, bool) {
	if v, ok := e.pending[name]; ok {
		return v, true
	}
	v, ok := e.fields[name]
	return v, ok
}

// StringField returns the cached value of name as a string, or "".
func (e *Entity) StringField(name string) string {
	v, _ := e.Field(name)
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// IntField returns the cached value of name as an int.
func (e *Entity) IntField(name string) (int, bool) {
	v, _ := e.Field(name)
	return intValue(v)
}

// BoolField returns the cached value of name as a bool.
func (e *Entity) BoolField(name string) bool {
	v, _ := e.Field(name)
	b, _ := v.(bool)
	return b
}

// Fields returns a copy of the cached fields, buffered edits applied.
func (e *Entity) Fields() map[string]any {
	out := make(map[string]any, len(e.fields)+len(e.pending))
	for k, v := range e.fields {
		out[k] = v
	}
	for k, v := range e.pending {
		out[k] = v
	}
	return out
}

// Get returns a field, fetching the resource once if the field is not cached.
func (e *Entity) Get(ctx context.Context, name string) (any, error) {
	if v, ok := e.Field(name); ok {
		return v, nil
	}
	if !e.loaded {
		if err := e.fetch(ctx); err != nil {
			return nil, err
		}
		if v, ok := e.Field(name); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no field %q", ErrNoSuchField, e.schema.Kind, name)
}

// Refresh re-reads the resource, replacing every cached field. Edits buffered
// by Set and not yet saved are discarded.
func (e *Entity) Refresh(ctx context.Context) error {
	if err := e.fetch(ctx); err != nil {
		return err
	}
	e.pending = nil
	return nil
}

// fetch re-reads the fields and keeps buffered edits.
func (e *Entity) fetch(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	var data map[string]any
	if err := e.client.call(ctx, Request{Method: http.MethodGet, Path: e.url}, &data); err != nil {
		return err
	}
	e.setFields(data)
	e.loaded = true
	return nil
}

// Set buffers an edit until Save.
func (e *Entity) Set(name string, value any) {
	if e.pending == nil {
		e.pending = make(map[string]any)
	}
	e.pending[name] = value
}

// Save sends buffered edits as a partial update. Non-editable types fail with a
// *ValidationError and nothing is sent.
func (e *Entity) Save(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	if !e.schema.Editable {
		return &ValidationError{Resource: e.schema.Kind, Err: ErrNotEditable}
	}
	if len(e.pending) == 0 {
		return nil
	}
	if err := e.send(ctx, http.MethodPatch, e.pending); err != nil {
		return err
	}
	e.pending = nil
	return nil
}

// Update replaces the resource's writable fields (PUT).
func (e *Entity) Update(ctx context.Context, fields map[string]any) error {
	if err := e.editable(); err != nil {
		return err
	}
	return e.send(ctx, http.MethodPut, fields)
}

// PartialUpdate changes only the given fields (PATCH). Empty values are dropped.
func (e *Entity) PartialUpdate(ctx context.Context, fields map[string]any) error {
	if err := e.editable(); err != nil {
		return err
	}
	return e.send(ctx, http.MethodPatch, dropEmpty(fields))
}

func (e *Entity) send(ctx context.Context, method string, body any) error {
	var data map[string]any
	if err := e.client.call(ctx, Request{Method: method, Path: e.url, Body: body}, &data); err != nil {
		return err
	}
	if data != nil {
		e.setFields(data)
		e.loaded = true
	}
	return nil
}

// Delete removes the resource. The handle is unusable afterwards.
func (e *Entity) Delete(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	if !e.schema.Deletable {
		return &ValidationError{Resource: e.schema.Kind, Err: ErrNotDeletable}
	}

	if e.schema.SelectedDeleteKey != "" {
		req := Request{
			Method: http.MethodPost,
			Path:   e.client.resourceURL(e.schema.Name) + "delete_selected/",
			Query:  url.Values{"filter_enabled": {"true"}},
			Body:   map[string]any{e.schema.SelectedDeleteKey: []int{e.id}},
			Raw:    true,
		}
		if _, err := e.client.do(ctx, req); err != nil {
			return err
		}
	} else if _, err := e.client.do(ctx, Request{Method: http.MethodDelete, Path: e.url}); err != nil {
		return err
	}

	e.invalidate()
	if e.coll != nil {
		e.coll.forget(e.id)
	}
	return nil
}

func (e *Entity) invalidate() { e.deleted = true }

func (e *Entity) usable() error {
	if e.coll != nil {
		if err := e.coll.check(); err != nil {
			return err
		}
	}
	if e.Deleted() {
		return fmt.Errorf("%w: %s %d", ErrEntityDeleted, e.schema.Kind, e.id)
	}
	return nil
}

func (e *Entity) editable() error {
	if err := e.usable(); err != nil {
		return err
	}
	if !e.schema.Editable {
		return &ValidationError{Resource: e.schema.Kind, Err: ErrNotEditable}
	}
	return nil
}

// Related returns the embedded collection stored under field.
func (e *Entity) Related(field string) (*RelatedCollection, error) {
	kind, ok := e.schema.Related[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no related collection %q", ErrNotSupported, e.schema.Kind, field)
	}
	schema, err := e.client.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return newRelatedCollection(e, field, schema), nil
}

// RelatedEntity returns the single embedded resource stored under field, or nil
// when the field is empty.
func (e *Entity) RelatedEntity(field string) (*Entity, error) {
	kind, ok := e.schema.RelatedOne[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no related field %q", ErrNotSupported, e.schema.Kind, field)
	}
	schema, err := e.client.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	data, ok := e.fields[field].(map[string]any)
	if !ok {
		return nil, nil
	}
	return e.client.collection(schema).wrap(data), nil
}

// action performs a request against a sub-path of the entity and decodes the
// JSON answer into out when out is not nil.
func (e *Entity) action(ctx context.Context, method, suffix string, query url.Values, body, out any) error {
	if err := e.usable(); err != nil {
		return err
	}
	req := Request{Method: method, Path: e.url + suffix, Query: query, Body: body}
	if out == nil {
		req.Raw = true
		_, err := e.client.do(ctx, req)
		return err
	}
	return e.client.call(ctx, req, out)
}

// download streams a sub-path of the entity into "<dest>.<ext>" and returns the
// written path.
func (e *Entity) download(ctx context.Context, suffix string, query url.Values, dest, ext string) (string, error) {
	if err := e.usable(); err != nil {
		return "", err
	}
	return e.client.download(ctx, Request{Method: http.MethodGet, Path: e.url + suffix, Query: query}, dest, ext)
}

// taskAction performs a POST that starts a server job.
func (e *Entity) taskAction(ctx context.Context, suffix string, body any) (*BackgroundTask, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	return e.client.postForTask(ctx, e.url+suffix, nil, body)
}

// String renders the cached fields in key order.
func (e *Entity) String() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(e.fields[k])
		parts = append(parts, k+"="+string(v))
	}
	return fmt.Sprintf("<%s: %s>", e.schema.Kind, strings.Join(parts, " "))
}

func (c *Client) download(ctx context.Context, req Request, dest, ext string) (string, error) {
	req.Stream = true
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	path := dest + "." + ext
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	c.log.WithField("path", path).Debug("Downloaded file")
	return path, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func dropEmpty(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isEmpty(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
