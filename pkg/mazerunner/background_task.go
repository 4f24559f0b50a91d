package mazerunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Background task statuses.
const (
	TaskStatusPending  = "pending"
	TaskStatusRunning  = "running"
	TaskStatusPaused   = "paused"
	TaskStatusComplete = "complete"
	TaskStatusStopped  = "stopped"
)

// BackgroundTask tracks a long-running server job such as a deployment or an
// endpoint import.
type BackgroundTask struct {
	*Entity
}

// Status returns the cached task status.
func (t *BackgroundTask) Status() string { return t.StringField("status") }

// Done reports whether the task completed or was stopped.
func (t *BackgroundTask) Done() bool {
	s := t.Status()
	return s == TaskStatusComplete || s == TaskStatusStopped
}

// Progress returns the cached completion percentage.
func (t *BackgroundTask) Progress() int {
	p, _ := t.IntField("progress")
	return p
}

// Stop asks the server to stop the task.
func (t *BackgroundTask) Stop(ctx context.Context) error {
	return t.action(ctx, http.MethodPost, "stop/", nil, nil, nil)
}

// BackgroundTaskCollection lists either the running (and paused) tasks or the
// completed (and stopped) ones.
type BackgroundTaskCollection struct {
	*Collection
	running bool

	// WaitInitialInterval is the first delay between polls in Wait.
	WaitInitialInterval time.Duration
	// WaitMaxInterval caps the delay between polls in Wait.
	WaitMaxInterval time.Duration
}

func newBackgroundTaskCollection(base *Collection, running bool) *BackgroundTaskCollection {
	return &BackgroundTaskCollection{
		Collection:          base.WithQuery(url.Values{"running": {strconv.FormatBool(running)}}),
		running:             running,
		WaitInitialInterval: 500 * time.Millisecond,
		WaitMaxInterval:     10 * time.Second,
	}
}

// Running reports which half of the task list the view shows.
func (c *BackgroundTaskCollection) Running() bool { return c.running }

// Filter returns the running (true) or finished (false) tasks.
func (c *BackgroundTaskCollection) Filter(running bool) *BackgroundTaskCollection {
	out := newBackgroundTaskCollection(c.client.mustCollection(ResourceBackgroundTask), running)
	out.WaitInitialInterval = c.WaitInitialInterval
	out.WaitMaxInterval = c.WaitMaxInterval
	return out
}

// Get fetches one task.
func (c *BackgroundTaskCollection) Get(ctx context.Context, id int) (*BackgroundTask, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BackgroundTask{e}, nil
}

// List fetches every task in the view.
func (c *BackgroundTaskCollection) List(ctx context.Context) ([]*BackgroundTask, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *BackgroundTask { return &BackgroundTask{e} }), nil
}

// AcknowledgeAllComplete clears every complete or stopped task.
func (c *BackgroundTaskCollection) AcknowledgeAllComplete(ctx context.Context) error {
	return c.action(ctx, http.MethodPost, "acknowledge_all/", nil, nil, nil)
}

var errTaskNotDone = errors.New("background task still running")

// Wait polls a task with exponential backoff until it completes or is stopped,
// or ctx ends. Request errors stop the wait immediately.
func (c *BackgroundTaskCollection) Wait(ctx context.Context, id int) (*BackgroundTask, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.WaitInitialInterval
	b.MaxInterval = c.WaitMaxInterval
	b.MaxElapsedTime = 0

	var task *BackgroundTask
	operation := func() error {
		var data map[string]any
		// Unfiltered, so a task that just finished is still found.
		if err := c.client.call(ctx, Request{Path: c.itemURL(id)}, &data); err != nil {
			return backoff.Permanent(err)
		}
		task = &BackgroundTask{c.wrap(data)}
		if task.Done() {
			return nil
		}
		return errTaskNotDone
	}
	notify := func(_ error, next time.Duration) {
		c.client.log.WithFields(logrus.Fields{
			"task_id":  id,
			"status":   task.Status(),
			"progress": task.Progress(),
			"next":     next.String(),
		}).Debug("Waiting for background task")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return task, fmt.Errorf("waiting for background task %d: %w", id, err)
	}
	return task, nil
}

// postForTask sends a POST that starts a server job. The task is read from the
// answer when the server reports one; an empty answer yields a nil task. A body
// that is not a JSON object is an *APIError.
func (c *Client) postForTask(ctx context.Context, path string, query url.Values, body any) (*BackgroundTask, error) {
	resp, err := c.do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body, Raw: true})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Data)) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("background task response is not a JSON object: %v", err),
			BadResponse: true,
		}
	}
	return c.taskFromResponse(data)
}

// taskFromResponse accepts a task representation, {"background_task": {...}}
// or {"task_id": n}.
func (c *Client) taskFromResponse(data map[string]any) (*BackgroundTask, error) {
	coll := c.mustCollection(ResourceBackgroundTask)
	if nested, ok := data["background_task"].(map[string]any); ok {
		data = nested
	}
	if id, ok := intValue(data["task_id"]); ok {
		return &BackgroundTask{coll.wrap(map[string]any{"id": id, "status": TaskStatusPending})}, nil
	}
	if _, ok := intValue(data["id"]); !ok {
		return nil, nil
	}
	if _, ok := data["status"]; !ok {
		return nil, nil
	}
	return &BackgroundTask{coll.wrap(data)}, nil
}
