package mazerunner

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ActiveSOCEventCollection submits events to a SOC interface of type "SOC via
// MazeRunner API", for SOC products without a built-in integration. It is
// write-only.
type ActiveSOCEventCollection struct {
	*Collection
}

type socSubmission struct {
	Source string           `json:"source"`
	Data   []map[string]any `json:"data"`
}

func (s socSubmission) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Source, validation.Required),
		validation.Field(&s.Data, validation.Required),
	)
}

// Create submits one event to the SOC interface named socName.
func (c *ActiveSOCEventCollection) Create(ctx context.Context, socName string, event map[string]any) error {
	return c.CreateMultipleEvents(ctx, socName, []map[string]any{event})
}

// CreateMultipleEvents submits a batch of events to the SOC interface named
// socName.
func (c *ActiveSOCEventCollection) CreateMultipleEvents(ctx context.Context, socName string, events []map[string]any) error {
	body := socSubmission{Source: socName, Data: events}
	if err := body.Validate(); err != nil {
		return &ValidationError{Resource: c.schema.Kind, Err: err}
	}
	if err := c.action(ctx, http.MethodPost, "", nil, body, nil); err != nil {
		return err
	}
	c.client.log.WithField("source", socName).WithField("events", len(events)).Debug("Submitted SOC events")
	return nil
}

// SubmitEvents is CreateMultipleEvents under the name event sinks expect.
func (c *ActiveSOCEventCollection) SubmitEvents(ctx context.Context, socName string, events []map[string]any) error {
	return c.CreateMultipleEvents(ctx, socName, events)
}
