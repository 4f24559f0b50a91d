package mazerunner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Decoy machine statuses reported in the "machine_status" field.
const (
	MachineStatusNotSeen     = "not_seen"
	MachineStatusActive      = "active"
	MachineStatusInactive    = "inactive"
	MachineStatusBooting     = "booting"
	MachineStatusConfiguring = "configuring"
)

const dnsResolveFailure = "Failed to resolve address for decoy"

// Decoy is a machine attackers are lured to: a KVM guest nested in MazeRunner, an
// OVA deployed on ESX, or an EC2 instance.
type Decoy struct {
	*Entity
}

// Name returns the cached decoy name.
func (d *Decoy) Name() string { return d.StringField("name") }

// MachineStatus returns the cached machine status.
func (d *Decoy) MachineStatus() string { return d.StringField("machine_status") }

// DecoyUpdate carries the fields that can change on an existing decoy.
type DecoyUpdate struct {
	Name           string
	ChosenStaticIP string
	ChosenSubnet   string
	ChosenGateway  string
	ChosenDNS      string
	// DNSAddress is the decoy's DNS name. Breadcrumbs use it instead of the IP.
	DNSAddress string
}

// Update replaces the decoy configuration. Placement fields (os, vm type,
// hostname, account, region, subnet, vlan, interface) are carried over from the
// cached state; empty values are not sent.
func (d *Decoy) Update(ctx context.Context, u DecoyUpdate) error {
	data := map[string]any{
		"name":             u.Name,
		"chosen_static_ip": u.ChosenStaticIP,
		"chosen_subnet":    u.ChosenSubnet,
		"chosen_gateway":   u.ChosenGateway,
		"chosen_dns":       u.ChosenDNS,
		"dns_address":      u.DNSAddress,
	}
	for _, key := range []string{"os", "vm_type", "hostname", "account", "ec2_region", "ec2_subnet_id", "vlan", "chosen_interface"} {
		if v, ok := d.Field(key); ok {
			data[key] = v
		}
	}
	return d.Entity.Update(ctx, dropEmpty(data))
}

// PowerOn starts the decoy machine.
func (d *Decoy) PowerOn(ctx context.Context) error {
	return d.action(ctx, http.MethodPost, "power_on/", nil, nil, nil)
}

// PowerOff shuts the decoy machine down.
func (d *Decoy) PowerOff(ctx context.Context) error {
	return d.action(ctx, http.MethodPost, "power_off/", nil, nil, nil)
}

// Recreate rebuilds the decoy machine.
func (d *Decoy) Recreate(ctx context.Context) error {
	return d.action(ctx, http.MethodPost, "recreate/", nil, nil, nil)
}

// TestDNS checks that the decoy is registered in DNS. A resolution failure
// reported by the server is a false result, not an error.
func (d *Decoy) TestDNS(ctx context.Context) (bool, error) {
	err := d.action(ctx, http.MethodPost, "test_dns/", nil, nil, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(err, ErrValidation) {
		msgs := apiErr.NonFieldErrors()
		if len(msgs) == 1 && strings.HasPrefix(msgs[0], dnsResolveFailure) {
			return false, nil
		}
	}
	return false, err
}

// Download saves the OVA image of a standalone decoy to "<dest>.ova".
func (d *Decoy) Download(ctx context.Context, dest string) (string, error) {
	return d.download(ctx, "download/", nil, dest, "ova")
}

// DecoyCollection is the set of decoys in the system.
type DecoyCollection struct {
	*Collection
}

// DecoySpec describes a decoy to create.
type DecoySpec struct {
	// OS, e.g. Ubuntu_1404, Windows_7, Windows_Server_2012.
	OS string
	// VMType is KVM (nested) or OVA (standalone).
	VMType   string
	Name     string
	Hostname string

	ChosenStaticIP  string
	ChosenSubnet    string
	ChosenGateway   string
	ChosenDNS       string
	ChosenInterface string
	VLAN            int

	EC2Region   string
	EC2SubnetID string
	Account     string
	DNSAddress  string
}

func (s DecoySpec) fields() map[string]any {
	return dropEmpty(map[string]any{
		"os":               s.OS,
		"vm_type":          s.VMType,
		"name":             s.Name,
		"hostname":         s.Hostname,
		"chosen_static_ip": s.ChosenStaticIP,
		"chosen_subnet":    s.ChosenSubnet,
		"chosen_gateway":   s.ChosenGateway,
		"chosen_dns":       s.ChosenDNS,
		"chosen_interface": s.ChosenInterface,
		"vlan":             nonZero(s.VLAN),
		"ec2_region":       s.EC2Region,
		"ec2_subnet_id":    s.EC2SubnetID,
		"account":          s.Account,
		"dns_address":      s.DNSAddress,
	})
}

// Create creates a decoy.
func (c *DecoyCollection) Create(ctx context.Context, spec DecoySpec) (*Decoy, error) {
	e, err := c.Collection.Create(ctx, spec.fields())
	if err != nil {
		return nil, err
	}
	return &Decoy{e}, nil
}

// Get fetches one decoy.
func (c *DecoyCollection) Get(ctx context.Context, id int) (*Decoy, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Decoy{e}, nil
}

// List fetches every decoy.
func (c *DecoyCollection) List(ctx context.Context) ([]*Decoy, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *Decoy { return &Decoy{e} }), nil
}

// WaitForStatus polls the decoy until its machine status is one of statuses.
func (c *DecoyCollection) WaitForStatus(ctx context.Context, id int, interval, timeout time.Duration, statuses ...string) (*Decoy, error) {
	var last *Decoy
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		d, err := c.Get(ctx, id)
		if err != nil {
			return false, err
		}
		last = d
		for _, s := range statuses {
			if d.MachineStatus() == s {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		status := ""
		if last != nil {
			status = last.MachineStatus()
		}
		return last, fmt.Errorf("decoy %d did not reach %v (last %q): %w", id, statuses, status, err)
	}
	return last, nil
}

func wrapEach[T any](entities []*Entity, wrap func(*Entity) T) []T {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		out = append(out, wrap(e))
	}
	return out
}

func nonZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
