package mazerunner

import (
	"context"
	"net/http"
	"net/url"
)

// AllBreadcrumbsDeploymentGroupID is the built-in "All Breadcrumbs" group.
const AllBreadcrumbsDeploymentGroupID = 1

// Install and run methods accepted by the deployment actions.
const (
	InstallMethodCMD = "CMD_DEPLOY"
	InstallMethodEXE = "EXE_DEPLOY"
	RunMethodPSExec  = "PS_EXEC"
)

// DeploymentGroup connects a set of breadcrumbs to the endpoints they should be
// deployed on.
type DeploymentGroup struct {
	*Entity
}

// Name returns the cached group name.
func (g *DeploymentGroup) Name() string { return g.StringField("name") }

// Update replaces the group's name and description.
func (g *DeploymentGroup) Update(ctx context.Context, name, description string) error {
	return g.Entity.Update(ctx, map[string]any{
		"name":        name,
		"description": description,
	})
}

// PartialUpdate changes whichever of name and description is not empty.
func (g *DeploymentGroup) PartialUpdate(ctx context.Context, name, description string) error {
	return g.Entity.PartialUpdate(ctx, map[string]any{
		"name":        name,
		"description": description,
	})
}

// CheckConflicts reports breadcrumbs in the group that cannot be installed
// together on the given OS.
func (g *DeploymentGroup) CheckConflicts(ctx context.Context, os string) ([]any, error) {
	var out []any
	if err := g.action(ctx, http.MethodGet, "check_conflicts/", url.Values{"os": {os}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Deploy downloads the group's installer to "<dest>.<format>".
func (g *DeploymentGroup) Deploy(ctx context.Context, dest string, opts DeployOptions) (string, error) {
	q, ext := opts.query()
	return g.download(ctx, "deploy/", q, dest, ext)
}

// DeployCredentials are the Windows credentials MazeRunner uses to install on
// endpoints.
type DeployCredentials struct {
	// InstallMethod is EXE_DEPLOY or CMD_DEPLOY.
	InstallMethod string
	// RunMethod defaults to PS_EXEC.
	RunMethod string
	Username  string
	Password  string
	// Domain is empty for a local user.
	Domain string
	// DeployOn is "all" (default) or "failed".
	DeployOn string
}

func (c DeployCredentials) body() map[string]any {
	run := c.RunMethod
	if run == "" {
		run = RunMethodPSExec
	}
	on := c.DeployOn
	if on == "" {
		on = "all"
	}
	return map[string]any{
		"username":       c.Username,
		"password":       c.Password,
		"install_method": c.InstallMethod,
		"run_method":     run,
		"domain":         c.Domain,
		"deploy_on":      on,
	}
}

// AutoDeploy installs the group's breadcrumbs on every endpoint assigned to it.
// The returned task is nil when the server did not report one.
func (g *DeploymentGroup) AutoDeploy(ctx context.Context, creds DeployCredentials) (*BackgroundTask, error) {
	return g.taskAction(ctx, "auto_deploy/", creds.body())
}

// DeploymentGroupCollection is the set of deployment groups in the system.
type DeploymentGroupCollection struct {
	*Collection
}

// Create creates a deployment group.
func (c *DeploymentGroupCollection) Create(ctx context.Context, name, description string) (*DeploymentGroup, error) {
	data := map[string]any{"name": name}
	if description != "" {
		data["description"] = description
	}
	e, err := c.Collection.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	return &DeploymentGroup{e}, nil
}

// Get fetches one deployment group.
func (c *DeploymentGroupCollection) Get(ctx context.Context, id int) (*DeploymentGroup, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DeploymentGroup{e}, nil
}

// List fetches every deployment group.
func (c *DeploymentGroupCollection) List(ctx context.Context) ([]*DeploymentGroup, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *DeploymentGroup { return &DeploymentGroup{e} }), nil
}

// CredentialsTestResult is the outcome of TestDeploymentCredentials.
type CredentialsTestResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// TestDeploymentCredentials checks credentials against one endpoint without
// installing anything.
func (c *DeploymentGroupCollection) TestDeploymentCredentials(ctx context.Context, addr string, creds DeployCredentials) (*CredentialsTestResult, error) {
	body := map[string]any{
		"username":       creds.Username,
		"password":       creds.Password,
		"addr":           addr,
		"install_method": creds.InstallMethod,
		"domain":         creds.Domain,
	}
	var out CredentialsTestResult
	if err := c.action(ctx, http.MethodPost, "test_deployment_credentials/", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AutoDeployGroups runs AutoDeploy for several groups at once.
func (c *DeploymentGroupCollection) AutoDeployGroups(ctx context.Context, groupIDs []int, creds DeployCredentials) (*BackgroundTask, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	body := creds.body()
	body["deployment_groups_ids"] = groupIDs
	return c.client.postForTask(ctx, c.url+"auto_deploy_groups/", nil, body)
}

// DeployAll downloads the installers of every group to "<dest>.<format>".
func (c *DeploymentGroupCollection) DeployAll(ctx context.Context, dest, os, format string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	q, ext := DeployOptions{OS: os, DownloadFormat: format}.query()
	return c.client.download(ctx, Request{Method: http.MethodGet, Path: c.url + "deploy_all/", Query: q}, dest, ext)
}
