package mazerunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubClient connects a client to mux, which gets an empty discovery
// document so every resource resolves to its conventional path.
func newStubClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	if !canListen(t) {
		t.SkipNow()
	}
	mux.HandleFunc("GET "+APIRoot+"{$}", jsonHandler(`{}`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, APIKey: "id", APISecret: "secret"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func noContent(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestCollection_ListingRetainsNoHandles(t *testing.T) {
	results := make([]map[string]any, 0, 50)
	for id := 1; id <= 50; id++ {
		results = append(results, map[string]any{"id": id, "alert_type": "ssh", "status": "alert"})
	}
	body, err := json.Marshal(map[string]any{"count": len(results), "next": nil, "results": results})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1.0/alert/{$}", jsonHandler(string(body)))
	mux.HandleFunc("DELETE /api/v1.0/alert/{id}/", noContent)
	c := newStubClient(t, mux)
	ctx := context.Background()

	var last []*Alert
	for i := 0; i < 200; i++ {
		last, err = c.Alerts().Filter(AlertFilter{Types: []string{"ssh"}}).List(ctx)
		require.NoError(t, err)
		require.Len(t, last, 50)
	}

	coll, err := c.Collection(ResourceAlert)
	require.NoError(t, err)
	assert.Zero(t, coll.deleted.len())

	target := last[6]
	require.Equal(t, 7, target.ID())
	require.NoError(t, c.Alerts().Delete(ctx, 7))

	assert.Equal(t, 1, coll.deleted.len())
	assert.True(t, target.Deleted())
	assert.False(t, last[0].Deleted())
	assert.ErrorIs(t, target.Refresh(ctx), ErrEntityDeleted)
}

func TestRelatedCollection_BareIDMembers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1.0/service/3/", jsonHandler(`{"id": 3, "name": "ssh", "attached_decoys": [7]}`))
	mux.HandleFunc("GET /api/v1.0/decoy/7/", jsonHandler(`{"id": 7, "name": "trap"}`))
	mux.HandleFunc("DELETE /api/v1.0/decoy/7/", noContent)
	c := newStubClient(t, mux)
	ctx := context.Background()

	svc, err := c.Services().Get(ctx, 3)
	require.NoError(t, err)
	attached, err := svc.AttachedDecoys()
	require.NoError(t, err)

	members := attached.List()
	require.Len(t, members, 1)
	member := members[0]
	assert.True(t, strings.HasSuffix(member.URL(), "/api/v1.0/decoy/7/"), member.URL())

	name, err := member.Get(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "trap", name)

	require.NoError(t, c.Decoys().Delete(ctx, 7))
	assert.True(t, member.Deleted())
	assert.True(t, attached.List()[0].Deleted(), "stale parent data does not undo the deletion")
}

func TestPostForTask_Responses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /garbled/", jsonHandler(`not json`))
	mux.HandleFunc("POST /empty/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("POST /task/", jsonHandler(`{"task_id": 12}`))
	c := newStubClient(t, mux)
	ctx := context.Background()
	base := c.Transport().BaseURL()

	task, err := c.postForTask(ctx, base+"/garbled/", nil, nil)
	assert.Nil(t, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.BadResponse)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)

	task, err = c.postForTask(ctx, base+"/empty/", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, task)

	task, err = c.postForTask(ctx, base+"/task/", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 12, task.ID())
}

func TestCIDRMappingSpec_Validate(t *testing.T) {
	for _, tc := range []struct {
		block string
		valid bool
	}{
		{"10.0.0.0/24", true},
		{"2001:db8::/32", true},
		{"10.0.0.0/33", false},
		{"10.0.0.1", false},
		{"ten/8", false},
		{"", false},
	} {
		t.Run(fmt.Sprintf("%q", tc.block), func(t *testing.T) {
			err := CIDRMappingSpec{CIDRBlock: tc.block}.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
