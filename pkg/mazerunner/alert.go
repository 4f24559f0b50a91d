package mazerunner

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// AlertsPerPage is the page size requested when listing alerts.
const AlertsPerPage = 500

// Alert is generated every time an attacker interacts with a decoy. It is
// read-only, but may be deleted.
type Alert struct {
	*Entity
}

// AlertType returns the cached alert type, e.g. "code" or "http".
func (a *Alert) AlertType() string { return a.StringField("alert_type") }

// Status returns the cached alert status.
func (a *Alert) Status() string { return a.StringField("status") }

// DecoyName returns the name of the decoy that raised the alert, if embedded.
func (a *Alert) DecoyName() string {
	if decoy, ok := a.fields["decoy"].(map[string]any); ok {
		if name, ok := decoy["name"].(string); ok {
			return name
		}
	}
	return a.StringField("decoy_name")
}

// DownloadImageFile saves the executed code image to "<dest>.bin".
func (a *Alert) DownloadImageFile(ctx context.Context, dest string) (string, error) {
	return a.download(ctx, "download_image_file/", nil, dest, "bin")
}

// DownloadMemoryDumpFile saves the memory dump of the executed code to "<dest>.bin".
func (a *Alert) DownloadMemoryDumpFile(ctx context.Context, dest string) (string, error) {
	return a.download(ctx, "download_memory_dump_file/", nil, dest, "bin")
}

// DownloadNetworkCaptureFile saves the alert traffic to "<dest>.pcap".
func (a *Alert) DownloadNetworkCaptureFile(ctx context.Context, dest string) (string, error) {
	return a.download(ctx, "download_network_capture_file/", nil, dest, "pcap")
}

// DownloadSTIXFile saves the alert in STIX format to "<dest>.xml".
func (a *Alert) DownloadSTIXFile(ctx context.Context, dest string) (string, error) {
	return a.download(ctx, "download_stix_file/", nil, dest, "xml")
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	// Disabled makes the server ignore OnlyAlerts and Types.
	Disabled bool
	// OnlyAlerts drops alerts whose policy is Mute or Ignore.
	OnlyAlerts bool
	Types      []string
	// IDGreaterThan returns only alerts newer than the given id.
	IDGreaterThan int
}

func (f AlertFilter) query() url.Values {
	q := url.Values{
		"filter_enabled": {strconv.FormatBool(!f.Disabled)},
		"only_alerts":    {strconv.FormatBool(f.OnlyAlerts)},
		"per_page":       {strconv.Itoa(AlertsPerPage)},
	}
	if len(f.Types) > 0 {
		q.Set("alert_types", strings.Join(f.Types, " "))
	}
	if f.IDGreaterThan > 0 {
		q.Set("id_greater_than", strconv.Itoa(f.IDGreaterThan))
	}
	return q
}

// AlertCollection is a filtered view of the alerts in the system.
type AlertCollection struct {
	*Collection
	filter AlertFilter
}

func newAlertCollection(base *Collection, f AlertFilter) *AlertCollection {
	return &AlertCollection{Collection: base.WithQuery(f.query()), filter: f}
}

// Filter returns a new view with the given filter.
func (c *AlertCollection) Filter(f AlertFilter) *AlertCollection {
	return newAlertCollection(c.client.mustCollection(ResourceAlert), f)
}

// CurrentFilter returns the filter of the view.
func (c *AlertCollection) CurrentFilter() AlertFilter { return c.filter }

// Get fetches one alert.
func (c *AlertCollection) Get(ctx context.Context, id int) (*Alert, error) {
	e, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Alert{e}, nil
}

// List fetches every alert in the view.
func (c *AlertCollection) List(ctx context.Context) ([]*Alert, error) {
	entities, err := c.Collection.List(ctx)
	if err != nil {
		return nil, err
	}
	return wrapEach(entities, func(e *Entity) *Alert { return &Alert{e} }), nil
}

// Export saves the alerts of the view as CSV to "<dest>.csv".
func (c *AlertCollection) Export(ctx context.Context, dest string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	return c.client.download(ctx, Request{Method: http.MethodGet, Path: c.url + "export/", Query: c.query}, dest, "csv")
}

// DeleteSelected deletes the alerts with the given ids.
func (c *AlertCollection) DeleteSelected(ctx context.Context, ids []int) error {
	if err := c.deleteSelected(ctx, ids, false); err != nil {
		return err
	}
	for _, id := range ids {
		c.forget(id)
	}
	return nil
}

// DeleteFiltered deletes every alert matching the view.
func (c *AlertCollection) DeleteFiltered(ctx context.Context) error {
	return c.deleteSelected(ctx, nil, true)
}

func (c *AlertCollection) deleteSelected(ctx context.Context, ids []int, all bool) error {
	body := map[string]any{
		"selected_alert_ids":  ids,
		"delete_all_filtered": all,
	}
	return c.action(ctx, http.MethodPost, "delete_selected/", c.query, body, nil)
}
