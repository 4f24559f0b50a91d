package mazetwin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func canListen(t *testing.T) bool {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot bind for test: %v", err)
		return false
	}
	ln.Close()
	return true
}

func newTransport(t *testing.T, tw *Twin, srv *httptest.Server) *mazerunner.Transport {
	t.Helper()
	tr, err := mazerunner.NewTransport(tw.ClientConfig(srv.URL), logrus.New())
	require.NoError(t, err)
	return tr
}

func startTwin(t *testing.T, opts ...Option) (*Twin, *mazerunner.Transport) {
	t.Helper()
	if !canListen(t) {
		t.SkipNow()
	}
	tw, srv := NewServer(opts...)
	t.Cleanup(srv.Close)
	return tw, newTransport(t, tw, srv)
}

func TestTwin_Discovery(t *testing.T) {
	_, tr := startTwin(t)

	resp, err := tr.Do(context.Background(), mazerunner.Request{Path: mazerunner.APIRoot})
	require.NoError(t, err)

	var urls map[string]string
	require.NoError(t, resp.Decode(&urls))
	assert.Equal(t, tr.BaseURL()+"/api/v1.0/decoy/", urls[mazerunner.ResourceDecoy])
	assert.Contains(t, urls, mazerunner.ResourceAuditLog)
}

func TestTwin_RejectsBadSignature(t *testing.T) {
	if !canListen(t) {
		return
	}
	tw, srv := NewServer()
	defer srv.Close()

	cfg := tw.ClientConfig(srv.URL)
	cfg.APISecret = "wrong"
	tr, err := mazerunner.NewTransport(cfg, logrus.New())
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), mazerunner.Request{Path: mazerunner.APIRoot})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mazerunner.ErrAuthentication))
}

func TestTwin_RejectsUnsignedRequest(t *testing.T) {
	if !canListen(t) {
		return
	}
	_, srv := NewServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1.0/decoy/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTwin_CreateRequiresFields(t *testing.T) {
	_, tr := startTwin(t)

	_, err := tr.Do(context.Background(), mazerunner.Request{
		Method: http.MethodPost,
		Path:   "/api/v1.0/decoy/",
		Body:   map[string]any{"name": "only-name"},
	})
	require.Error(t, err)

	var apiErr *mazerunner.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Fields, "os")
	assert.Contains(t, apiErr.Fields, "hostname")
	assert.NotContains(t, apiErr.Fields, "name")
}

func TestTwin_PaginatesListings(t *testing.T) {
	tw, tr := startTwin(t, WithPageSize(2))
	for i := 0; i < 5; i++ {
		tw.AddAlert("ssh", "alert", "decoy")
	}

	resp, err := tr.Do(context.Background(), mazerunner.Request{Path: "/api/v1.0/alert/"})
	require.NoError(t, err)

	var page struct {
		Count   int              `json:"count"`
		Next    *string          `json:"next"`
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, resp.Decode(&page))
	assert.Equal(t, 5, page.Count)
	assert.Len(t, page.Results, 2)
	require.NotNil(t, page.Next)

	resp, err = tr.Do(context.Background(), mazerunner.Request{Path: "/api/v1.0/alert/", Query: map[string][]string{"page": {"3"}}})
	require.NoError(t, err)
	page.Next = nil
	require.NoError(t, resp.Decode(&page))
	assert.Len(t, page.Results, 1)
	assert.Nil(t, page.Next)
}

func TestTwin_TaskAdvancesOnRead(t *testing.T) {
	tw, tr := startTwin(t)
	id := tw.AddTask("auto_deploy")

	var statuses []string
	for i := 0; i < 3; i++ {
		resp, err := tr.Do(context.Background(), mazerunner.Request{Path: "/api/v1.0/background-task/" + itoa(id) + "/"})
		require.NoError(t, err)
		var task map[string]any
		require.NoError(t, resp.Decode(&task))
		statuses = append(statuses, task["status"].(string))
	}
	assert.Equal(t, []string{"running", "complete", "complete"}, statuses)
}

func TestTwin_AuditLogRecordsChanges(t *testing.T) {
	_, tr := startTwin(t)
	ctx := context.Background()

	_, err := tr.Do(ctx, mazerunner.Request{
		Method: http.MethodPost,
		Path:   "/api/v1.0/deployment-group/",
		Body:   map[string]any{"name": "servers"},
	})
	require.NoError(t, err)

	resp, err := tr.Do(ctx, mazerunner.Request{Path: "/api/v1.0/audit-log/"})
	require.NoError(t, err)
	var page struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, resp.Decode(&page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Create", page.Results[0]["event_type_label"])
	assert.Equal(t, "servers", page.Results[0]["item"])
}

func TestTwin_ServiceDecoyRelation(t *testing.T) {
	tw, tr := startTwin(t)
	ctx := context.Background()

	create := func(path string, body map[string]any) int {
		resp, err := tr.Do(ctx, mazerunner.Request{Method: http.MethodPost, Path: path, Body: body})
		require.NoError(t, err)
		var obj map[string]any
		require.NoError(t, resp.Decode(&obj))
		return int(obj["id"].(float64))
	}
	decoyID := create("/api/v1.0/decoy/", map[string]any{"os": "Ubuntu_1404", "vm_type": "KVM", "name": "d", "hostname": "h"})
	serviceID := create("/api/v1.0/service/", map[string]any{"name": "s", "service_type": "ssh"})

	_, err := tr.Do(ctx, mazerunner.Request{
		Method: http.MethodPost,
		Path:   "/api/v1.0/service/" + itoa(serviceID) + "/connect_to_decoy/",
		Body:   map[string]any{"decoy_id": decoyID},
		Raw:    true,
	})
	require.NoError(t, err)

	obj, ok := tw.Get(mazerunner.ResourceService, serviceID)
	require.True(t, ok)
	assert.Equal(t, []int{decoyID}, obj["_decoys"])
}

func TestTwin_ResetRestoresSeeds(t *testing.T) {
	tw := New()
	tw.AddAlert("ssh", "alert", "d")
	assert.Equal(t, 1, tw.Count(mazerunner.ResourceAlert))

	tw.Reset()
	assert.Equal(t, 0, tw.Count(mazerunner.ResourceAlert))
	assert.Equal(t, 1, tw.Count(mazerunner.ResourceDeploymentGroup))
	assert.Equal(t, 5, tw.Count(mazerunner.ResourceAlertPolicy))
}

func TestTwin_SetChangesStoredField(t *testing.T) {
	tw := New()
	id := tw.AddAlert("ssh", "alert", "d")
	require.True(t, tw.Set(mazerunner.ResourceAlert, id, "status", "mute"))

	obj, ok := tw.Get(mazerunner.ResourceAlert, id)
	require.True(t, ok)
	assert.Equal(t, "mute", obj["status"])
	assert.False(t, tw.Set(mazerunner.ResourceAlert, id+1, "status", "mute"))
}

func TestGenerateEndpoint(t *testing.T) {
	tw := New()
	mapping := Object{"cidr_block": "10.1.2.0/24", "deployment_group": 1}

	tw.generateEndpoint(mapping)
	tw.generateEndpoint(mapping)

	eps := tw.tables[resourceEndpoint].sorted()
	require.Len(t, eps, 1)
	assert.Equal(t, "10.1.2.1", eps[0]["ip_address"])
	assert.Equal(t, 1, eps[0]["_group"])
}
