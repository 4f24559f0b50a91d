package mazerunner

import (
	"fmt"
	"sort"
	"sync"
)

// Resource names, as keyed in the API root document.
const (
	ResourceDecoy           = "decoy"
	ResourceService         = "service"
	ResourceDeploymentGroup = "deployment-group"
	ResourceBreadcrumb      = "breadcrumb"
	ResourceAlert           = "alert"
	ResourceEndpoint        = "endpoint"
	ResourceBackgroundTask  = "background-task"
	ResourceAlertPolicy     = "alert-policy"
	ResourceCIDRMapping     = "cidr-mapping"
	ResourceActiveSOC       = "api-soc"
	ResourceAuditLog        = "audit-log"
	ResourceForensicPuller  = "forensic-puller-on-demand"
)

// Schema describes a resource type: which operations it supports and how its
// relations are embedded in its representation.
type Schema struct {
	Name string
	// Kind is the display name used in String() and log fields.
	Kind string

	Editable  bool
	Creatable bool
	Deletable bool
	Paginated bool
	// Listable is false for write-only endpoints such as the SOC API.
	Listable  bool
	Gettable  bool
	HasParams bool

	// Required fields are checked locally before Create sends anything.
	Required []string

	// Related maps a field holding a list of embedded objects to the resource
	// type of those objects.
	Related map[string]string
	// RelatedOne maps a field holding one embedded object to its resource type.
	RelatedOne map[string]string

	// SelectedDeleteKey, when set, makes Delete go through the collection's
	// "delete_selected/" action with the id listed under this key.
	SelectedDeleteKey string
}

// Registry holds the schemas a Client knows about.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry returns a registry holding schemas.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a schema.
func (r *Registry) Register(s Schema) {
	if s.Kind == "" {
		s.Kind = s.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = s
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: unknown resource type %q", ErrNotSupported, name)
	}
	return s, nil
}

// Names lists the registered resource names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry describes the resource types of MazeRunner API v1.0.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Schema{
			Name: ResourceDecoy, Kind: "Decoy",
			Editable: true, Creatable: true, Deletable: true, Paginated: true,
			Listable: true, Gettable: true, HasParams: true,
			Required: []string{"os", "vm_type", "name", "hostname"},
		},
		Schema{
			Name: ResourceService, Kind: "Service",
			Editable: true, Creatable: true, Deletable: true, Paginated: true,
			Listable: true, Gettable: true, HasParams: true,
			Required: []string{"name", "service_type"},
			Related: map[string]string{
				"attached_decoys":  ResourceDecoy,
				"available_decoys": ResourceDecoy,
			},
		},
		Schema{
			Name: ResourceBreadcrumb, Kind: "Breadcrumb",
			Editable: true, Creatable: true, Deletable: true, Paginated: true,
			Listable: true, Gettable: true, HasParams: true,
			Required: []string{"name", "breadcrumb_type"},
			Related: map[string]string{
				"attached_services":  ResourceService,
				"available_services": ResourceService,
				"deployment_groups":  ResourceDeploymentGroup,
			},
		},
		Schema{
			Name: ResourceDeploymentGroup, Kind: "DeploymentGroup",
			Editable: true, Creatable: true, Deletable: true, Paginated: true,
			Listable: true, Gettable: true,
			Required: []string{"name"},
		},
		Schema{
			Name: ResourceAlert, Kind: "Alert",
			Deletable: true, Paginated: true,
			Listable: true, Gettable: true, HasParams: true,
		},
		Schema{
			Name: ResourceEndpoint, Kind: "Endpoint",
			Editable: true, Creatable: true, Deletable: true, Paginated: true,
			Listable: true, Gettable: true,
			RelatedOne: map[string]string{
				"deployment_group": ResourceDeploymentGroup,
			},
			SelectedDeleteKey: "selected_endpoints_ids",
		},
		Schema{
			Name: ResourceBackgroundTask, Kind: "BackgroundTask",
			Paginated: true, Listable: true, Gettable: true,
		},
		Schema{
			Name: ResourceAlertPolicy, Kind: "AlertPolicy",
			Listable: true, Gettable: true, HasParams: true,
		},
		Schema{
			Name: ResourceCIDRMapping, Kind: "CIDRMapping",
			Creatable: true, Deletable: true,
			Listable: true, Gettable: true,
			Required: []string{"cidr_block"},
		},
		Schema{
			Name: ResourceActiveSOC, Kind: "ActiveSOCEvent",
		},
		Schema{
			Name: ResourceAuditLog, Kind: "AuditLogLine",
			Paginated: true, Listable: true, Gettable: true,
		},
		Schema{
			Name: ResourceForensicPuller, Kind: "ForensicPuller",
		},
	)
}
