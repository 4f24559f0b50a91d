package mazerunner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var runMethodForInstallMethod = map[string]string{
	"ZIP": InstallMethodCMD,
	"EXE": InstallMethodEXE,
	"MSI": InstallMethodEXE,
}

// RunMethodFor maps an installer format (ZIP, EXE, MSI) to the deployment method
// used to run it.
func RunMethodFor(installMethod string) (string, error) {
	run, ok := runMethodForInstallMethod[strings.ToUpper(installMethod)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidInstallMethod, installMethod)
	}
	return run, nil
}

// Endpoint is one workstation in the organization together with the status of
// breadcrumb deployment on it.
type Endpoint struct {
	*Entity
}

// IPAddress returns the cached address.
func (e *Endpoint) IPAddress() string { return e.StringField("ip_address") }

// Hostname returns the cached host name.
func (e *Endpoint) Hostname() string { return e.StringField("hostname") }

// DeploymentGroup returns the group the endpoint is assigned to, or nil.
func (e *Endpoint) DeploymentGroup() (*DeploymentGroup, error) {
	g, err := e.RelatedEntity("deployment_group")
	if err != nil || g == nil {
		return nil, err
	}
	return &DeploymentGroup{g}, nil
}

// ReassignToGroup assigns the endpoint to a deployment group and refreshes it.
func (e *Endpoint) ReassignToGroup(ctx context.Context, groupID int) error {
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.endpoints().ReassignToGroup(ctx, groupID, []int{e.id}); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

// ClearDeploymentGroup unassigns the endpoint and refreshes it.
func (e *Endpoint) ClearDeploymentGroup(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.endpoints().ClearDeploymentGroup(ctx, []int{e.id}); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (e *Endpoint) endpoints() *EndpointCollection {
	return e.client.Endpoints()
}

// EndpointFilter narrows an endpoint listing.
type EndpointFilter struct {
	// Disabled makes the server ignore the criteria.
	Disabled bool
	Keywords string
	// Statuses and DeploymentGroups are whitelists.
	Statuses         []string
	DeploymentGroups []int
}

func (f EndpointFilter) query() url.Values {
	q := url.Values{
		"filter_enabled": {strconv.FormatBool(!f.Disabled)},
		"keywords":       {f.Keywords},
	}
	for _, s := range f.Statuses {
		q.Add("statuses", s)
	}
	for _, g := range f.DeploymentGroups {
		q.Add("deploy_groups", strconv.Itoa(g))
	}
	return q
}

// EndpointCollection is a filtered view of the endpoints in the system.
type EndpointCollection struct {
	*Collection
	filter EndpointFilter
}

func newEndpointCollection(base *Collection, f EndpointFilter) *EndpointCollection {
	return &EndpointCollection{Collection: base.WithQuery(f.query()), filter: f}
}

// Filter returns the endpoints matching keywords.
func (c *EndpointCollection) Filter(keywords string) *EndpointCollection {
	return c.FilterBy(EndpointFilter{Keywords: keywords})
}

// FilterBy returns a new view with the given filter.
func (c *EndpointCollection) FilterBy(f EndpointFilter) *EndpointCollection {
	return newEndpointCollection(c.client.mustCollection(ResourceEndpoint), f)
}

// EndpointSpec describes an endpoint to create. At least one of IPAddress, DNS
// or Hostname is required; the server enforces it.
type EndpointSpec struct {
	IPAddress         string
	DNS               string
	Hostname          string
	DeploymentGroupID int
}

// Create registers an endpoint.
func (c *EndpointCollection) Create(ctx context.Context, spec EndpointSpec) (*Endpoint, error) {
	data := dropEmpty(map[string]any{
		"ip_address":          spec.IPAddress,
		"dns":                 spec.DNS,
		"hostname":            spec.Hostname,
		"deployment_group_id": nonZero(spec.DeploymentGroupID),
	})
	e, err := c.Collection.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	return &Endpoint{e}, nil
}

// Get fetches one endpoint.
func (c *EndpointCollection) Get(ctx context.Context, id int) (*Endpoint, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Endpoint{e}, nil
}

// List fetches every endpoint in the view.
func (c *EndpointCollection) List(ctx context.Context) ([]*Endpoint, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *Endpoint { return &Endpoint{e} }), nil
}

// ReassignToGroup assigns endpoints to a deployment group.
func (c *EndpointCollection) ReassignToGroup(ctx context.Context, groupID int, endpointIDs []int) error {
	return c.reassign(ctx, groupID, endpointIDs)
}

// ClearDeploymentGroup unassigns endpoints from their deployment group.
func (c *EndpointCollection) ClearDeploymentGroup(ctx context.Context, endpointIDs []int) error {
	return c.reassign(ctx, nil, endpointIDs)
}

func (c *EndpointCollection) reassign(ctx context.Context, group any, endpointIDs []int) error {
	body := map[string]any{
		"to_group":               group,
		"selected_endpoints_ids": endpointIDs,
	}
	return c.action(ctx, http.MethodPost, "reassign_selected/", nil, body, nil)
}

// CleanCredentials are used to uninstall breadcrumbs from endpoints.
type CleanCredentials struct {
	// InstallMethod is the uninstaller format: ZIP, EXE or MSI.
	InstallMethod string
	Username      string
	Password      string
	Domain        string
}

func (cc CleanCredentials) body() (map[string]any, error) {
	run, err := RunMethodFor(cc.InstallMethod)
	if err != nil {
		return nil, &ValidationError{Resource: "Endpoint", Err: err}
	}
	return map[string]any{
		"username":       cc.Username,
		"password":       cc.Password,
		"domain":         cc.Domain,
		"run_method":     run,
		"install_method": cc.InstallMethod,
	}, nil
}

// CleanFiltered uninstalls breadcrumbs from every endpoint matching the view.
func (c *EndpointCollection) CleanFiltered(ctx context.Context, creds CleanCredentials) error {
	body, err := creds.body()
	if err != nil {
		return err
	}
	body["clean_all_filtered"] = true
	return c.action(ctx, http.MethodPost, "clean_selected/", c.query, body, nil)
}

// CleanByIDs uninstalls breadcrumbs from the given endpoints.
func (c *EndpointCollection) CleanByIDs(ctx context.Context, endpointIDs []int, creds CleanCredentials) error {
	body, err := creds.body()
	if err != nil {
		return err
	}
	body["selected_endpoints_ids"] = endpointIDs
	return c.action(ctx, http.MethodPost, "clean_selected/", nil, body, nil)
}

// DeleteFiltered deletes every endpoint matching the view.
func (c *EndpointCollection) DeleteFiltered(ctx context.Context) error {
	return c.action(ctx, http.MethodPost, "delete_selected/", c.query, map[string]any{"delete_all_filtered": true}, nil)
}

// DeleteByIDs deletes the given endpoints.
func (c *EndpointCollection) DeleteByIDs(ctx context.Context, endpointIDs []int) error {
	if err := c.action(ctx, http.MethodPost, "delete_selected/", nil, map[string]any{"selected_endpoints_ids": endpointIDs}, nil); err != nil {
		return err
	}
	for _, id := range endpointIDs {
		c.forget(id)
	}
	return nil
}

// ExportFiltered returns the endpoints matching the view as CSV.
func (c *EndpointCollection) ExportFiltered(ctx context.Context) ([]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	resp, err := c.client.do(ctx, Request{Method: http.MethodGet, Path: c.url + "export/", Query: c.query, Raw: true})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FilterData returns the values available for the endpoint filters.
func (c *EndpointCollection) FilterData(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.action(ctx, http.MethodGet, "filter_data/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusDashboard returns the endpoints and their deployment statuses.
func (c *EndpointCollection) StatusDashboard(ctx context.Context) (any, error) {
	var out any
	if err := c.action(ctx, http.MethodGet, "status_dashboard/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
