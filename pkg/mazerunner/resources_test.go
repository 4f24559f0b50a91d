package mazerunner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invisible-tech/mazerunner-sdk/internal/mazetwin"
	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func newDecoy(t *testing.T, c *mazerunner.Client, spec mazerunner.DecoySpec) *mazerunner.Decoy {
	t.Helper()
	if spec.OS == "" {
		spec.OS = "Ubuntu_1404"
	}
	if spec.VMType == "" {
		spec.VMType = "KVM"
	}
	if spec.Hostname == "" {
		spec.Hostname = "ws-01"
	}
	d, err := c.Decoys().Create(context.Background(), spec)
	require.NoError(t, err)
	return d
}

func TestDecoy_CreateAndGet(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	created := newDecoy(t, c, mazerunner.DecoySpec{Name: "backup-server"})
	got, err := c.Decoys().Get(ctx, created.ID())
	require.NoError(t, err)

	assert.Equal(t, created.ID(), got.ID())
	assert.Equal(t, "backup-server", got.Name())
	assert.Equal(t, created.Fields(), got.Fields())
	assert.Equal(t, mazerunner.MachineStatusNotSeen, got.MachineStatus())
}

func TestDecoy_CreateMissingFields(t *testing.T) {
	_, c := newTestClient(t)

	_, err := c.Decoys().Create(context.Background(), mazerunner.DecoySpec{Name: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, mazerunner.ErrValidation)

	var verr *mazerunner.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"hostname", "os", "vm_type"}, verr.FieldNames())
}

func TestDecoy_RefreshSeesOutOfBandChange(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "before"})
	require.True(t, tw.Set(mazerunner.ResourceDecoy, d.ID(), "name", "after"))

	assert.Equal(t, "before", d.Name())
	require.NoError(t, d.Refresh(ctx))
	assert.Equal(t, "after", d.Name())
}

func TestDecoy_Update(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "old"})
	require.NoError(t, d.Update(ctx, mazerunner.DecoyUpdate{Name: "new", DNSAddress: "new.corp.local"}))
	assert.Equal(t, "new", d.Name())

	got, err := c.Decoys().Get(ctx, d.ID())
	require.NoError(t, err)
	assert.Equal(t, "new.corp.local", got.StringField("dns_address"))
	assert.Equal(t, "Ubuntu_1404", got.StringField("os"))
}

func TestDecoy_PowerOnAndWait(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "d"})
	require.NoError(t, d.PowerOn(ctx))

	got, err := c.Decoys().WaitForStatus(ctx, d.ID(), 10*time.Millisecond, time.Second, mazerunner.MachineStatusActive)
	require.NoError(t, err)
	assert.Equal(t, mazerunner.MachineStatusActive, got.MachineStatus())

	require.NoError(t, d.PowerOff(ctx))
	require.NoError(t, d.Refresh(ctx))
	assert.Equal(t, mazerunner.MachineStatusInactive, d.MachineStatus())
}

func TestDecoy_TestDNS(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	unresolved := newDecoy(t, c, mazerunner.DecoySpec{Name: "a"})
	ok, err := unresolved.TestDNS(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	resolved := newDecoy(t, c, mazerunner.DecoySpec{Name: "b", DNSAddress: "b.corp.local"})
	ok, err = resolved.TestDNS(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDecoy_Download(t *testing.T) {
	_, c := newTestClient(t)

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "ova", VMType: "OVA"})
	path, err := d.Download(context.Background(), filepath.Join(t.TempDir(), "image"))
	require.NoError(t, err)
	assert.Equal(t, ".ova", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ova image of ova", string(data))
}

func TestEntity_DeleteThenGet(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "gone"})
	require.NoError(t, d.Delete(ctx))
	assert.True(t, d.Deleted())

	_, err := c.Decoys().Get(ctx, d.ID())
	require.Error(t, err)
	assert.True(t, mazerunner.IsNotFound(err))

	assert.ErrorIs(t, d.Refresh(ctx), mazerunner.ErrEntityDeleted)
	assert.ErrorIs(t, d.PowerOn(ctx), mazerunner.ErrEntityDeleted)
}

func TestCollection_DeleteInvalidatesHandles(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	d := newDecoy(t, c, mazerunner.DecoySpec{Name: "shared"})
	list, err := c.Decoys().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.Decoys().Delete(ctx, d.ID()))
	assert.True(t, list[0].Deleted())
	assert.True(t, d.Deleted())
}

func TestEntity_RefreshDiscardsPendingEdits(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	g, err := c.DeploymentGroups().Create(ctx, "servers", "")
	require.NoError(t, err)
	g.Set("description", "local edit")
	require.True(t, tw.Set(mazerunner.ResourceDeploymentGroup, g.ID(), "description", "from server"))

	require.NoError(t, g.Refresh(ctx))
	assert.Equal(t, "from server", g.StringField("description"))

	require.NoError(t, g.Save(ctx))
	obj, _ := tw.Get(mazerunner.ResourceDeploymentGroup, g.ID())
	assert.Equal(t, "from server", obj["description"])
}

func TestEntity_LazyGetKeepsPendingEdits(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()
	newDecoy(t, c, mazerunner.DecoySpec{Name: "listed"})

	list, err := c.Decoys().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	d := list[0]
	d.Set("name", "renamed")

	_, err = d.Get(ctx, "does_not_exist")
	assert.ErrorIs(t, err, mazerunner.ErrNoSuchField)
	assert.Equal(t, "renamed", d.Name())
}

func TestEntity_SaveNotEditable(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()
	id := tw.AddAlert("ssh", "alert", "d")

	a, err := c.Alerts().Get(ctx, id)
	require.NoError(t, err)
	a.Set("status", "mute")

	err = a.Save(ctx)
	assert.ErrorIs(t, err, mazerunner.ErrValidation)
	assert.ErrorIs(t, err, mazerunner.ErrNotEditable)

	obj, _ := tw.Get(mazerunner.ResourceAlert, id)
	assert.Equal(t, "alert", obj["status"])
}

func TestEntity_SaveAndLazyGet(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	g, err := c.DeploymentGroups().Create(ctx, "servers", "")
	require.NoError(t, err)
	g.Set("description", "all servers")
	require.NoError(t, g.Save(ctx))
	assert.Equal(t, "all servers", g.StringField("description"))

	_, err = g.Get(ctx, "does_not_exist")
	assert.ErrorIs(t, err, mazerunner.ErrNoSuchField)
}

func TestCollection_Pagination(t *testing.T) {
	tw, c := newTestClient(t, mazetwin.WithPageSize(2))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tw.AddAlert("ssh", "alert", "d")
	}

	n, err := c.Alerts().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	it := c.Alerts().Pages()
	pages := 0
	for it.Next(ctx) {
		pages++
		assert.Equal(t, 5, it.Count())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 3, pages)

	all, err := c.Alerts().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 1, all[0].ID())
	assert.Equal(t, 5, all[4].ID())
}

func TestService_ConnectToDecoy(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	d1 := newDecoy(t, c, mazerunner.DecoySpec{Name: "d1"})
	d2 := newDecoy(t, c, mazerunner.DecoySpec{Name: "d2"})
	s, err := c.Services().Create(ctx, "ssh-svc", "ssh", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.ConnectToDecoy(ctx, d1.ID()))
	attached, err := s.AttachedDecoys()
	require.NoError(t, err)
	available, err := s.AvailableDecoys()
	require.NoError(t, err)
	assert.Equal(t, []int{d1.ID()}, attached.IDs())
	assert.True(t, available.Contains(d2.ID()))
	assert.False(t, available.Contains(d1.ID()))

	require.NoError(t, s.DetachFromDecoy(ctx, d1.ID()))
	attached, err = s.AttachedDecoys()
	require.NoError(t, err)
	assert.Equal(t, 0, attached.Len())
}

func TestService_CreateWithZip(t *testing.T) {
	_, c := newTestClient(t)
	zip := filepath.Join(t.TempDir(), "site.zip")
	require.NoError(t, os.WriteFile(zip, []byte("PK"), 0o600))

	s, err := c.Services().Create(context.Background(), "web", "http", zip, nil)
	require.NoError(t, err)
	assert.Equal(t, "web", s.Name())
	assert.Equal(t, "site.zip", s.StringField("zip_file"))
}

func TestBreadcrumb_Relations(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	s, err := c.Services().Create(ctx, "ssh-svc", "ssh", "", nil)
	require.NoError(t, err)
	g, err := c.DeploymentGroups().Create(ctx, "laptops", "")
	require.NoError(t, err)
	b, err := c.Breadcrumbs().Create(ctx, "ssh-crumb", "ssh", map[string]any{"username": "admin"})
	require.NoError(t, err)

	require.NoError(t, b.ConnectToService(ctx, s.ID()))
	require.NoError(t, b.AddToGroup(ctx, g.ID()))

	services, err := b.AttachedServices()
	require.NoError(t, err)
	assert.True(t, services.Contains(s.ID()))
	groups, err := b.DeploymentGroups()
	require.NoError(t, err)
	assert.Equal(t, []int{g.ID()}, groups.IDs())

	require.NoError(t, b.RemoveFromGroup(ctx, g.ID()))
	groups, err = b.DeploymentGroups()
	require.NoError(t, err)
	assert.Equal(t, 0, groups.Len())

	path, err := b.Deploy(ctx, filepath.Join(t.TempDir(), "crumb"), mazerunner.DeployOptions{OS: "Windows"})
	require.NoError(t, err)
	assert.Equal(t, ".zip", filepath.Ext(path))
}

func TestDeploymentGroup_AutoDeployTaskCompletes(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	g, err := c.DeploymentGroups().Get(ctx, mazerunner.AllBreadcrumbsDeploymentGroupID)
	require.NoError(t, err)
	assert.Equal(t, "All Breadcrumbs", g.Name())

	task, err := g.AutoDeploy(ctx, mazerunner.DeployCredentials{
		InstallMethod: mazerunner.InstallMethodCMD,
		Username:      "admin",
		Password:      "secret",
	})
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, mazerunner.TaskStatusPending, task.Status())

	tasks := c.BackgroundTasks()
	tasks.WaitInitialInterval = 5 * time.Millisecond
	tasks.WaitMaxInterval = 20 * time.Millisecond
	done, err := tasks.Wait(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, mazerunner.TaskStatusComplete, done.Status())
	assert.Equal(t, 100, done.Progress())

	running, err := c.BackgroundTasks().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, running)

	finished, err := c.BackgroundTasks().Filter(false).List(ctx)
	require.NoError(t, err)
	assert.Len(t, finished, 1)

	require.NoError(t, tasks.AcknowledgeAllComplete(ctx))
	finished, err = c.BackgroundTasks().Filter(false).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, finished)
}

func TestBackgroundTask_WaitHonoursContext(t *testing.T) {
	tw, c := newTestClient(t)
	id := tw.AddTask("auto_deploy")

	task, err := c.BackgroundTasks().Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, task.Stop(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.BackgroundTasks().Wait(ctx, id)
	assert.Error(t, err)
}

func TestDeploymentGroup_Credentials(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	res, err := c.DeploymentGroups().TestDeploymentCredentials(ctx, "10.0.0.5", mazerunner.DeployCredentials{
		InstallMethod: mazerunner.InstallMethodEXE, Username: "admin", Password: "pw",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = c.DeploymentGroups().TestDeploymentCredentials(ctx, "10.0.0.5", mazerunner.DeployCredentials{
		InstallMethod: mazerunner.InstallMethodEXE, Username: "admin",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reason)
}

func TestDeploymentGroup_AutoDeployGroupsUnknownGroup(t *testing.T) {
	_, c := newTestClient(t)

	_, err := c.DeploymentGroups().AutoDeployGroups(context.Background(), []int{99}, mazerunner.DeployCredentials{
		InstallMethod: mazerunner.InstallMethodCMD, Username: "u", Password: "p",
	})
	require.Error(t, err)
	var apiErr *mazerunner.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Fields, "deployment_groups_ids")
}

func TestRunMethodFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ZIP", mazerunner.InstallMethodCMD},
		{"zip", mazerunner.InstallMethodCMD},
		{"EXE", mazerunner.InstallMethodEXE},
		{"MSI", mazerunner.InstallMethodEXE},
	}
	for _, tt := range tests {
		got, err := mazerunner.RunMethodFor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := mazerunner.RunMethodFor("TAR")
	assert.ErrorIs(t, err, mazerunner.ErrInvalidInstallMethod)
}

func TestEndpoint_GroupAssignment(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	g, err := c.DeploymentGroups().Create(ctx, "workstations", "")
	require.NoError(t, err)
	ep, err := c.Endpoints().Create(ctx, mazerunner.EndpointSpec{IPAddress: "10.0.0.20", Hostname: "ws-20"})
	require.NoError(t, err)

	group, err := ep.DeploymentGroup()
	require.NoError(t, err)
	assert.Nil(t, group)

	require.NoError(t, ep.ReassignToGroup(ctx, g.ID()))
	group, err = ep.DeploymentGroup()
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, g.ID(), group.ID())

	require.NoError(t, ep.ClearDeploymentGroup(ctx))
	group, err = ep.DeploymentGroup()
	require.NoError(t, err)
	assert.Nil(t, group)
}

func TestEndpoint_CreateValidation(t *testing.T) {
	_, c := newTestClient(t)

	_, err := c.Endpoints().Create(context.Background(), mazerunner.EndpointSpec{IPAddress: "not-an-ip"})
	require.Error(t, err)
	var apiErr *mazerunner.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Fields, "ip_address")

	_, err = c.Endpoints().Create(context.Background(), mazerunner.EndpointSpec{})
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.NonFieldErrors(), 1)
}

func TestEndpoint_FilterAndDelete(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "192.168.1.1"} {
		_, err := c.Endpoints().Create(ctx, mazerunner.EndpointSpec{IPAddress: ip})
		require.NoError(t, err)
	}

	filtered, err := c.Endpoints().Filter("10.0.0.").List(ctx)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	csv, err := c.Endpoints().Filter("192.168").ExportFiltered(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "192.168.1.1")
	assert.NotContains(t, string(csv), "10.0.0.1")

	require.NoError(t, filtered[0].Delete(ctx))
	assert.Equal(t, 2, tw.Count(mazerunner.ResourceEndpoint))

	require.NoError(t, c.Endpoints().Filter("10.0.0.").DeleteFiltered(ctx))
	assert.Equal(t, 1, tw.Count(mazerunner.ResourceEndpoint))
}

func TestEndpoint_CleanByIDsRejectsInstallMethod(t *testing.T) {
	_, c := newTestClient(t)

	err := c.Endpoints().CleanByIDs(context.Background(), []int{1}, mazerunner.CleanCredentials{InstallMethod: "RPM", Username: "u"})
	assert.ErrorIs(t, err, mazerunner.ErrInvalidInstallMethod)
	assert.ErrorIs(t, err, mazerunner.ErrValidation)
}

func TestAlert_FilterAndDownloads(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	first := tw.AddAlert("ssh", "alert", "decoy-1")
	tw.AddAlert("http", "mute", "decoy-1")
	third := tw.AddAlert("ssh", "alert", "decoy-2")

	only, err := c.Alerts().Filter(mazerunner.AlertFilter{OnlyAlerts: true, Types: []string{"ssh"}}).List(ctx)
	require.NoError(t, err)
	require.Len(t, only, 2)
	assert.Equal(t, "decoy-1", only[0].DecoyName())

	newer, err := c.Alerts().Filter(mazerunner.AlertFilter{IDGreaterThan: first}).List(ctx)
	require.NoError(t, err)
	assert.Len(t, newer, 2)

	a, err := c.Alerts().Get(ctx, third)
	require.NoError(t, err)
	dir := t.TempDir()

	path, err := a.DownloadSTIXFile(ctx, filepath.Join(dir, "stix"))
	require.NoError(t, err)
	assert.Equal(t, ".xml", filepath.Ext(path))
	path, err = a.DownloadNetworkCaptureFile(ctx, filepath.Join(dir, "capture"))
	require.NoError(t, err)
	assert.Equal(t, ".pcap", filepath.Ext(path))

	path, err = c.Alerts().Export(ctx, filepath.Join(dir, "alerts"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alert_type")

	require.NoError(t, c.Alerts().DeleteSelected(ctx, []int{first}))
	assert.Equal(t, 2, tw.Count(mazerunner.ResourceAlert))
}

func TestAlertPolicy_UpdateAndReset(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	policies, err := c.AlertPolicies().List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, policies)

	p := policies[0]
	require.NoError(t, p.UpdateToStatus(ctx, mazerunner.PolicyMute))
	assert.Equal(t, mazerunner.PolicyMute, p.ToStatus())

	require.NoError(t, c.AlertPolicies().ResetAllToDefault(ctx))
	got, err := c.AlertPolicies().Get(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, mazerunner.PolicyAlert, got.ToStatus())
}

func TestCIDRMapping_GenerateEndpoints(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	_, err := c.CIDRMappings().Create(ctx, mazerunner.CIDRMappingSpec{CIDRBlock: "10.9.0.0/33"})
	assert.ErrorIs(t, err, mazerunner.ErrValidation)

	m, err := c.CIDRMappings().Create(ctx, mazerunner.CIDRMappingSpec{
		CIDRBlock:         "10.9.0.0/24",
		DeploymentGroupID: mazerunner.AllBreadcrumbsDeploymentGroupID,
		Active:            true,
	})
	require.NoError(t, err)
	assert.True(t, m.Active())

	task, err := m.GenerateEndpoints(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	eps, err := c.Endpoints().List(ctx)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "10.9.0.1", eps[0].IPAddress())
}

func TestCIDRMapping_CreateRejectsBadBlock(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	for _, block := range []string{"10.9.0.0/33", "10.9.0.1", "not-a-block"} {
		_, err := c.CIDRMappings().Create(ctx, mazerunner.CIDRMappingSpec{CIDRBlock: block})
		var verr *mazerunner.ValidationError
		require.True(t, errors.As(err, &verr), block)
		assert.Equal(t, []string{"CIDRBlock"}, verr.FieldNames(), block)
	}
	assert.Zero(t, tw.Count(mazerunner.ResourceCIDRMapping))
}

func TestActiveSOC_Submit(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	err := c.ActiveSOCEvents().CreateMultipleEvents(ctx, "splunk-feed", []map[string]any{
		{"ip": "10.0.0.4", "event": "login"},
		{"ip": "10.0.0.5", "event": "login"},
	})
	require.NoError(t, err)

	subs := tw.SOCSubmissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "splunk-feed", subs[0].Source)
	assert.Len(t, subs[0].Events, 2)

	err = c.ActiveSOCEvents().Create(ctx, "", map[string]any{"ip": "1.2.3.4"})
	assert.ErrorIs(t, err, mazerunner.ErrValidation)
}

func TestAuditLog_FilterAndClear(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	g, err := c.DeploymentGroups().Create(ctx, "temp", "")
	require.NoError(t, err)
	require.NoError(t, g.Delete(ctx))

	creates, err := c.AuditLog().Filter(mazerunner.AuditLogFilter{EventTypes: []string{"Create"}}).List(ctx)
	require.NoError(t, err)
	require.Len(t, creates, 1)
	assert.Equal(t, "api", creates[0].Username())

	require.NoError(t, c.AuditLog().Clear(ctx))
	lines, err := c.AuditLog().List(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Delete", lines[0].EventType())
}

func TestAuditLog_Filters(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	_, c := newTestClient(t, mazetwin.WithClock(func() time.Time {
		return t0.Add(time.Duration(offset.Load()))
	}))
	ctx := context.Background()

	_, err := c.DeploymentGroups().Create(ctx, "alpha", "")
	require.NoError(t, err)
	offset.Store(int64(time.Hour))
	beta, err := c.DeploymentGroups().Create(ctx, "beta", "")
	require.NoError(t, err)
	offset.Store(int64(2 * time.Hour))
	require.NoError(t, beta.Delete(ctx))

	for _, tc := range []struct {
		name   string
		filter mazerunner.AuditLogFilter
		want   int
	}{
		{"no criteria", mazerunner.AuditLogFilter{}, 3},
		{"start date", mazerunner.AuditLogFilter{StartDate: t0.Add(30 * time.Minute)}, 2},
		{"end date", mazerunner.AuditLogFilter{EndDate: t0.Add(90 * time.Minute)}, 2},
		{"date range", mazerunner.AuditLogFilter{StartDate: t0.Add(30 * time.Minute), EndDate: t0.Add(90 * time.Minute)}, 1},
		{"item", mazerunner.AuditLogFilter{Item: "alpha"}, 1},
		{"object ids", mazerunner.AuditLogFilter{ObjectIDs: strconv.Itoa(beta.ID())}, 2},
		{"known user", mazerunner.AuditLogFilter{Usernames: []string{"api"}}, 3},
		{"unknown user", mazerunner.AuditLogFilter{Usernames: []string{"nobody"}}, 0},
		{"category", mazerunner.AuditLogFilter{Categories: []string{mazerunner.ResourceDeploymentGroup}}, 3},
		{"other category", mazerunner.AuditLogFilter{Categories: []string{mazerunner.ResourceDecoy}}, 0},
		{"event type", mazerunner.AuditLogFilter{EventTypes: []string{"Delete"}}, 1},
		{"disabled ignores criteria", mazerunner.AuditLogFilter{Disabled: true, EventTypes: []string{"Delete"}, Usernames: []string{"nobody"}}, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lines, err := c.AuditLog().Filter(tc.filter).List(ctx)
			require.NoError(t, err)
			assert.Len(t, lines, tc.want)
		})
	}

	deletes, err := c.AuditLog().Filter(mazerunner.AuditLogFilter{EventTypes: []string{"Delete"}}).List(ctx)
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	assert.Equal(t, mazerunner.ResourceDeploymentGroup, deletes[0].Category())
}

func TestForensicPuller_RunOnIPList(t *testing.T) {
	tw, c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ForensicPuller().RunOnIPList(ctx, []string{"10.0.0.7"}))
	assert.Equal(t, 1, tw.Count(mazerunner.ResourceAlert))

	err := c.ForensicPuller().RunOnIPList(ctx, []string{"not-an-ip"})
	assert.ErrorIs(t, err, mazerunner.ErrValidation)
	err = c.ForensicPuller().RunOnIPList(ctx, nil)
	assert.ErrorIs(t, err, mazerunner.ErrValidation)
}

func TestCIDRMapping_GenerateAllEndpoints(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	for _, block := range []string{"10.9.0.0/24", "10.8.0.0/24"} {
		_, err := c.CIDRMappings().Create(ctx, mazerunner.CIDRMappingSpec{CIDRBlock: block, Active: true})
		require.NoError(t, err)
	}
	task, err := c.CIDRMappings().GenerateAllEndpoints(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	eps, err := c.Endpoints().List(ctx)
	require.NoError(t, err)
	assert.Len(t, eps, 2)

	dashboard, err := c.Endpoints().StatusDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"not_installed": float64(2)}, dashboard)

	data, err := c.Endpoints().FilterData(ctx)
	require.NoError(t, err)
	assert.Contains(t, data, "statuses")
	assert.NotEmpty(t, data["deployment_groups"])
}
