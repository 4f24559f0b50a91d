package mazerunner

import (
	"context"
	"errors"
	"net/netip"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CIDRMapping is a CIDR block scanned by the daily endpoint importer, with an
// optional deployment group for the endpoints it finds.
type CIDRMapping struct {
	*Entity
}

// CIDRBlock returns the cached block.
func (m *CIDRMapping) CIDRBlock() string { return m.StringField("cidr_block") }

// Active reports whether the block is included in imports.
func (m *CIDRMapping) Active() bool { return m.BoolField("active") }

// GenerateEndpoints scans the block now and imports its endpoints.
func (m *CIDRMapping) GenerateEndpoints(ctx context.Context) (*BackgroundTask, error) {
	return m.taskAction(ctx, "generate_endpoints/", map[string]any{"reassign": false})
}

// CIDRMappingCollection is the unpaginated list of CIDR mappings.
type CIDRMappingCollection struct {
	*Collection
}

// CIDRMappingSpec describes a CIDR mapping to create.
type CIDRMappingSpec struct {
	CIDRBlock string
	// DeploymentGroupID is assigned to imported endpoints that have none.
	DeploymentGroupID int
	Comments          string
	Active            bool
}

// Validate checks the block notation locally.
func (s CIDRMappingSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CIDRBlock, validation.Required, validation.By(cidrBlock)),
		validation.Field(&s.DeploymentGroupID, validation.Min(0)),
	)
}

func cidrBlock(value any) error {
	block, _ := value.(string)
	if block == "" {
		return nil
	}
	if _, err := netip.ParsePrefix(block); err != nil {
		return errors.New("must be a valid CIDR block")
	}
	return nil
}

// Create adds a CIDR mapping.
func (c *CIDRMappingCollection) Create(ctx context.Context, spec CIDRMappingSpec) (*CIDRMapping, error) {
	if err := spec.Validate(); err != nil {
		return nil, &ValidationError{Resource: c.schema.Kind, Err: err}
	}
	e, err := c.Collection.Create(ctx, map[string]any{
		"cidr_block":       spec.CIDRBlock,
		"deployment_group": nonZero(spec.DeploymentGroupID),
		"comments":         spec.Comments,
		"active":           spec.Active,
	})
	if err != nil {
		return nil, err
	}
	return &CIDRMapping{e}, nil
}

// Get fetches one mapping.
func (c *CIDRMappingCollection) Get(ctx context.Context, id int) (*CIDRMapping, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CIDRMapping{e}, nil
}

// List fetches every mapping.
func (c *CIDRMappingCollection) List(ctx context.Context) ([]*CIDRMapping, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *CIDRMapping { return &CIDRMapping{e} }), nil
}

// GenerateAllEndpoints scans every active block and imports its endpoints.
func (c *CIDRMappingCollection) GenerateAllEndpoints(ctx context.Context) (*BackgroundTask, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.client.postForTask(ctx, c.url+"generate_all_endpoints/", nil, map[string]any{"reassign": false})
}
