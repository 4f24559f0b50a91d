package mazerunner

import (
	"context"
	"net/http"
)

// Service is an application installed on a decoy that attackers are tempted to
// connect to: SSH, Git, MySQL, remote desktop.
type Service struct {
	*Entity
}

// Name returns the cached service name.
func (s *Service) Name() string { return s.StringField("name") }

// ServiceType returns the cached service type.
func (s *Service) ServiceType() string { return s.StringField("service_type") }

// Update replaces the service configuration, keeping its service type. When
// zipFile is not empty it is uploaded as the service's "zip_file".
func (s *Service) Update(ctx context.Context, name, zipFile string, extra map[string]any) error {
	if err := s.editable(); err != nil {
		return err
	}
	data := map[string]any{
		"name":         name,
		"service_type": s.ServiceType(),
	}
	for k, v := range extra {
		data[k] = v
	}

	var out map[string]any
	req := Request{Method: http.MethodPut, Path: s.url, Body: data, Files: zipFiles(zipFile)}
	if err := s.client.call(ctx, req, &out); err != nil {
		return err
	}
	s.setFields(out)
	s.loaded = true
	return nil
}

// ConnectToDecoy attaches the service to a decoy and refreshes the service.
func (s *Service) ConnectToDecoy(ctx context.Context, decoyID int) error {
	if err := s.action(ctx, http.MethodPost, "connect_to_decoy/", nil, map[string]any{"decoy_id": decoyID}, nil); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// DetachFromDecoy detaches the service from a decoy and refreshes the service.
func (s *Service) DetachFromDecoy(ctx context.Context, decoyID int) error {
	if err := s.action(ctx, http.MethodPost, "detach_from_decoy/", nil, map[string]any{"decoy_id": decoyID}, nil); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// AttachedDecoys lists the decoys the service runs on.
func (s *Service) AttachedDecoys() (*RelatedCollection, error) {
	return s.Related("attached_decoys")
}

// AvailableDecoys lists the decoys the service can be attached to.
func (s *Service) AvailableDecoys() (*RelatedCollection, error) {
	return s.Related("available_decoys")
}

// ServiceCollection is the set of services in the system.
type ServiceCollection struct {
	*Collection
}

// Create creates a service. extra carries type-specific parameters; see Params.
func (c *ServiceCollection) Create(ctx context.Context, name, serviceType, zipFile string, extra map[string]any) (*Service, error) {
	data := map[string]any{
		"name":         name,
		"service_type": serviceType,
	}
	for k, v := range extra {
		data[k] = v
	}
	e, err := c.CreateWithFiles(ctx, data, zipFiles(zipFile))
	if err != nil {
		return nil, err
	}
	return &Service{e}, nil
}

// Get fetches one service.
func (c *ServiceCollection) Get(ctx context.Context, id int) (*Service, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Service{e}, nil
}

// List fetches every service.
func (c *ServiceCollection) List(ctx context.Context) ([]*Service, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *Service { return &Service{e} }), nil
}

func zipFiles(path string) map[string]string {
	if path == "" {
		return nil
	}
	return map[string]string{"zip_file": path}
}
