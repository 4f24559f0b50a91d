package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

// listColumns are the fields shown by "list" after the id.
var listColumns = map[string][]string{
	mazerunner.ResourceDecoy:           {"name", "hostname", "os", "machine_status"},
	mazerunner.ResourceService:         {"name", "service_type"},
	mazerunner.ResourceBreadcrumb:      {"name", "breadcrumb_type"},
	mazerunner.ResourceDeploymentGroup: {"name", "description"},
	mazerunner.ResourceAlert:           {"alert_type", "status", "decoy", "timestamp"},
	mazerunner.ResourceEndpoint:        {"ip_address", "hostname", "dns", "status", "deployment_group"},
	mazerunner.ResourceBackgroundTask:  {"task_type", "status", "progress"},
	mazerunner.ResourceAlertPolicy:     {"alert_type", "to_status", "default_status"},
	mazerunner.ResourceCIDRMapping:     {"cidr_block", "deployment_group", "active", "comments"},
	mazerunner.ResourceAuditLog:        {"username", "event_type_label", "category", "item"},
}

func columnsFor(resource string) []string {
	if cols, ok := listColumns[resource]; ok {
		return cols
	}
	return []string{"name"}
}

// cell renders a field value. Embedded objects show their name.
func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		if name, ok := val["name"]; ok {
			return cell(name)
		}
		if id, ok := val["id"]; ok {
			return cell(id)
		}
	}
	return fmt.Sprint(v)
}

func renderEntities(w io.Writer, resource string, entities []*mazerunner.Entity) error {
	cols := columnsFor(resource)
	header := append([]string{"ID"}, cols...)
	data := pterm.TableData{header}
	for _, e := range entities {
		row := []string{strconv.Itoa(e.ID())}
		for _, col := range cols {
			v, _ := e.Field(col)
			row = append(row, cell(v))
		}
		data = append(data, row)
	}
	return renderTable(w, data)
}

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
