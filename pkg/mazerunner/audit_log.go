package mazerunner

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AuditTimeFormat is the timestamp layout of audit log date filters.
const AuditTimeFormat = "2006-01-02T15:04:05"

// AuditLogLine is one audit log record.
type AuditLogLine struct {
	*Entity
}

// Username returns the user that triggered the event.
func (l *AuditLogLine) Username() string { return l.StringField("username") }

// Category returns the event category.
func (l *AuditLogLine) Category() string { return l.StringField("category") }

// EventType returns the event type label, e.g. "Create" or "Delete".
func (l *AuditLogLine) EventType() string { return l.StringField("event_type_label") }

// AuditLogFilter narrows an audit log listing. Unset fields do not restrict
// the result.
type AuditLogFilter struct {
	// Disabled makes the server ignore the criteria.
	Disabled   bool
	StartDate  time.Time
	EndDate    time.Time
	Item       string
	Usernames  []string
	Categories []string
	EventTypes []string
	ObjectIDs  string
}

func (f AuditLogFilter) query() url.Values {
	q := url.Values{"filter_enabled": {strconv.FormatBool(!f.Disabled)}}
	if !f.StartDate.IsZero() {
		q.Set("start_date", f.StartDate.Format(AuditTimeFormat))
	}
	if !f.EndDate.IsZero() {
		q.Set("end_date", f.EndDate.Format(AuditTimeFormat))
	}
	if f.Item != "" {
		q.Set("item", f.Item)
	}
	if f.ObjectIDs != "" {
		q.Set("object_ids", f.ObjectIDs)
	}
	for _, u := range f.Usernames {
		q.Add("username", u)
	}
	for _, c := range f.Categories {
		q.Add("category", c)
	}
	for _, e := range f.EventTypes {
		q.Add("event_type", e)
	}
	return q
}

// AuditLogCollection is a filtered view of the audit log.
type AuditLogCollection struct {
	*Collection
	filter AuditLogFilter
}

func newAuditLogCollection(base *Collection, f AuditLogFilter) *AuditLogCollection {
	return &AuditLogCollection{Collection: base.WithQuery(f.query()), filter: f}
}

// Filter returns a new view with the given filter.
func (c *AuditLogCollection) Filter(f AuditLogFilter) *AuditLogCollection {
	return newAuditLogCollection(c.client.mustCollection(ResourceAuditLog), f)
}

// List fetches every record in the view.
func (c *AuditLogCollection) List(ctx context.Context) ([]*AuditLogLine, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *AuditLogLine { return &AuditLogLine{e} }), nil
}

// Clear empties the audit log. The server records the clearing itself.
func (c *AuditLogCollection) Clear(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.client.do(ctx, Request{Method: http.MethodDelete, Path: c.url})
	return err
}
