package mazerunner

import (
	"context"
	"net/http"
)

// Alert policy levels.
const (
	PolicyIgnore = 0
	PolicyMute   = 1
	PolicyAlert  = 2
)

// AlertPolicy (a "system-wide rule") sets the level of one alert type.
type AlertPolicy struct {
	*Entity
}

// ToStatus returns the cached policy level.
func (p *AlertPolicy) ToStatus() int {
	n, _ := p.IntField("to_status")
	return n
}

// UpdateToStatus changes the policy level.
func (p *AlertPolicy) UpdateToStatus(ctx context.Context, toStatus int) error {
	if err := p.usable(); err != nil {
		return err
	}
	var out map[string]any
	if err := p.client.call(ctx, Request{Method: http.MethodPut, Path: p.url, Body: map[string]any{"to_status": toStatus}}, &out); err != nil {
		return err
	}
	p.setFields(out)
	return nil
}

// AlertPolicyCollection is the unpaginated list of alert policies.
type AlertPolicyCollection struct {
	*Collection
}

// Get fetches one policy.
func (c *AlertPolicyCollection) Get(ctx context.Context, id int) (*AlertPolicy, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AlertPolicy{e}, nil
}

// List fetches every policy.
func (c *AlertPolicyCollection) List(ctx context.Context) ([]*AlertPolicy, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *AlertPolicy { return &AlertPolicy{e} }), nil
}

// ResetAllToDefault restores every policy to its system default.
func (c *AlertPolicyCollection) ResetAllToDefault(ctx context.Context) error {
	return c.action(ctx, http.MethodPost, "reset_all/", nil, nil, nil)
}
