package mazerunner

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Breadcrumb is a set of connection credentials planted on endpoints that leads
// an attacker to a service on a decoy.
type Breadcrumb struct {
	*Entity
}

// Name returns the cached breadcrumb name.
func (b *Breadcrumb) Name() string { return b.StringField("name") }

// BreadcrumbType returns the cached breadcrumb type.
func (b *Breadcrumb) BreadcrumbType() string { return b.StringField("breadcrumb_type") }

// Update replaces the breadcrumb configuration, keeping its type.
func (b *Breadcrumb) Update(ctx context.Context, name string, extra map[string]any) error {
	data := map[string]any{
		"name":            name,
		"breadcrumb_type": b.BreadcrumbType(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return b.Entity.Update(ctx, data)
}

// ConnectToService attaches the breadcrumb to a service and refreshes it.
func (b *Breadcrumb) ConnectToService(ctx context.Context, serviceID int) error {
	return b.postAndRefresh(ctx, "connect_to_service/", map[string]any{"service_id": serviceID})
}

// DetachFromService detaches the breadcrumb from a service and refreshes it.
func (b *Breadcrumb) DetachFromService(ctx context.Context, serviceID int) error {
	return b.postAndRefresh(ctx, "detach_from_service/", map[string]any{"service_id": serviceID})
}

// AddToGroup adds the breadcrumb to a deployment group and refreshes it.
func (b *Breadcrumb) AddToGroup(ctx context.Context, deploymentGroupID int) error {
	return b.postAndRefresh(ctx, "add_to_group/", map[string]any{"deployment_group_id": deploymentGroupID})
}

// RemoveFromGroup removes the breadcrumb from a deployment group and refreshes it.
func (b *Breadcrumb) RemoveFromGroup(ctx context.Context, deploymentGroupID int) error {
	return b.postAndRefresh(ctx, "remove_from_group/", map[string]any{"deployment_group_id": deploymentGroupID})
}

func (b *Breadcrumb) postAndRefresh(ctx context.Context, suffix string, body map[string]any) error {
	if err := b.action(ctx, http.MethodPost, suffix, nil, body, nil); err != nil {
		return err
	}
	return b.Refresh(ctx)
}

// DeployOptions select the installer generated by Deploy.
type DeployOptions struct {
	// OS is Windows or Linux.
	OS string
	// DownloadType is install or uninstall.
	DownloadType string
	// DownloadFormat is ZIP (default), EXE or MSI.
	DownloadFormat string
}

func (o DeployOptions) query() (url.Values, string) {
	format := o.DownloadFormat
	if format == "" {
		format = "ZIP"
	}
	q := url.Values{"os": {o.OS}, "download_format": {format}}
	if o.DownloadType != "" {
		q.Set("download_type", o.DownloadType)
	}
	return q, strings.ToLower(format)
}

// Deploy generates the breadcrumb installer and saves it to "<dest>.<format>".
func (b *Breadcrumb) Deploy(ctx context.Context, dest string, opts DeployOptions) (string, error) {
	q, ext := opts.query()
	return b.download(ctx, "deploy/", q, dest, ext)
}

// AttachedServices lists the services the breadcrumb leads to.
func (b *Breadcrumb) AttachedServices() (*RelatedCollection, error) {
	return b.Related("attached_services")
}

// AvailableServices lists the services the breadcrumb may be attached to.
func (b *Breadcrumb) AvailableServices() (*RelatedCollection, error) {
	return b.Related("available_services")
}

// DeploymentGroups lists the deployment groups the breadcrumb belongs to.
func (b *Breadcrumb) DeploymentGroups() (*RelatedCollection, error) {
	return b.Related("deployment_groups")
}

// BreadcrumbCollection is the set of breadcrumbs in the system.
type BreadcrumbCollection struct {
	*Collection
}

// Create creates a breadcrumb. extra carries type-specific parameters.
func (c *BreadcrumbCollection) Create(ctx context.Context, name, breadcrumbType string, extra map[string]any) (*Breadcrumb, error) {
	data := map[string]any{
		"name":            name,
		"breadcrumb_type": breadcrumbType,
	}
	for k, v := range extra {
		data[k] = v
	}
	e, err := c.Collection.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	return &Breadcrumb{e}, nil
}

// Get fetches one breadcrumb.
func (c *BreadcrumbCollection) Get(ctx context.Context, id int) (*Breadcrumb, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Breadcrumb{e}, nil
}

// List fetches every breadcrumb.
func (c *BreadcrumbCollection) List(ctx context.Context) ([]*Breadcrumb, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *Breadcrumb { return &Breadcrumb{e} }), nil
}
