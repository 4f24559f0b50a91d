package mazerunner

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ForensicPuller collects forensic data from endpoints on demand. The results
// arrive as "forensic_puller" alerts.
type ForensicPuller struct {
	coll *Collection
}

// RunOnIPList starts the puller on the given endpoint addresses.
func (p *ForensicPuller) RunOnIPList(ctx context.Context, ips []string) error {
	if err := validation.Validate(ips, validation.Required, validation.Each(is.IP)); err != nil {
		return &ValidationError{Resource: "ForensicPuller", Err: err}
	}
	return p.coll.action(ctx, http.MethodPost, "run_on_ip_list/", nil, map[string]any{"ip_list": ips}, nil)
}
