package mazetwin

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// newObject builds a resource from a create request. It returns per-field
// errors the way the appliance does.
func (tw *Twin) newObject(resource string, data map[string]any, files map[string]string) (Object, map[string]string) {
	if errs := requiredFields(resource, data); len(errs) > 0 {
		return nil, errs
	}

	obj := Object{}
	for k, v := range data {
		if k == "id" || k == "url" || strings.HasPrefix(k, "_") {
			continue
		}
		obj[k] = normalize(v)
	}
	for field, name := range files {
		obj[field] = name
	}

	switch resource {
	case resourceDecoy:
		obj["machine_status"] = "not_seen"
	case resourceService:
		obj["_decoys"] = []int{}
	case resourceBreadcrumb:
		obj["_services"] = []int{}
		obj["_groups"] = []int{}
	case resourceEndpoint:
		if errs := validateEndpoint(obj); len(errs) > 0 {
			return nil, errs
		}
		if id, ok := intOf(obj["deployment_group_id"]); ok {
			if _, exists := tw.tables[resourceDeploymentGroup].get(id); !exists {
				return nil, map[string]string{"deployment_group_id": "Invalid pk \"" + itoa(id) + "\" - object does not exist."}
			}
			obj["_group"] = id
		}
		delete(obj, "deployment_group_id")
		obj["status"] = "not_installed"
	case resourceCIDRMapping:
		if _, _, err := net.ParseCIDR(stringOf(obj["cidr_block"])); err != nil {
			return nil, map[string]string{"cidr_block": "Enter a valid CIDR block."}
		}
	}
	return obj, nil
}

func requiredFields(resource string, data map[string]any) map[string]string {
	var required []string
	switch resource {
	case resourceDecoy:
		required = []string{"os", "vm_type", "name", "hostname"}
	case resourceService:
		required = []string{"name", "service_type"}
	case resourceBreadcrumb:
		required = []string{"name", "breadcrumb_type"}
	case resourceDeploymentGroup:
		required = []string{"name"}
	case resourceCIDRMapping:
		required = []string{"cidr_block"}
	}
	errs := map[string]string{}
	for _, f := range required {
		if v, ok := data[f]; !ok || v == nil || v == "" {
			errs[f] = "This field is required."
		}
	}
	return errs
}

func validateEndpoint(obj Object) map[string]string {
	errs := map[string]string{}
	ip, dns, host := stringOf(obj["ip_address"]), stringOf(obj["dns"]), stringOf(obj["hostname"])
	if ip == "" && dns == "" && host == "" {
		errs["non_field_errors"] = "You must provide either dns, hostname, or ip address"
		return errs
	}
	if ip != "" {
		if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
			errs["ip_address"] = "Enter a valid IPv4 address."
		}
	}
	if len(dns) > 255 {
		errs["dns"] = "Maximum field length is 255 characters"
	}
	if len(host) > 15 {
		errs["hostname"] = "Maximum field length is 15 characters"
	}
	return errs
}

func (tw *Twin) itemURL(r *http.Request, resource string, id any) string {
	n, _ := intOf(id)
	return baseURL(r) + apiPrefix + "/" + resource + "/" + itoa(n) + "/"
}

// render returns the public representation of obj, with embedded relations.
func (tw *Twin) render(r *http.Request, resource string, obj Object) Object {
	out := Object{}
	for k, v := range obj {
		if !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	out["url"] = tw.itemURL(r, resource, obj["id"])

	switch resource {
	case resourceService:
		out["attached_decoys"], out["available_decoys"] = tw.split(r, resourceDecoy, idsOf(obj["_decoys"]))
	case resourceBreadcrumb:
		out["attached_services"], out["available_services"] = tw.split(r, resourceService, idsOf(obj["_services"]))
		out["deployment_groups"], _ = tw.split(r, resourceDeploymentGroup, idsOf(obj["_groups"]))
	case resourceEndpoint:
		out["deployment_group"] = nil
		if id, ok := obj["_group"].(int); ok {
			if group, exists := tw.tables[resourceDeploymentGroup].get(id); exists {
				out["deployment_group"] = tw.summary(r, resourceDeploymentGroup, group)
			}
		}
	}
	return out
}

// split returns summaries of the members of resource whose ids are in ids, and
// of the rest.
func (tw *Twin) split(r *http.Request, resource string, ids []int) ([]Object, []Object) {
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	attached, available := []Object{}, []Object{}
	for _, obj := range tw.tables[resource].sorted() {
		if in[obj["id"].(int)] {
			attached = append(attached, tw.summary(r, resource, obj))
		} else {
			available = append(available, tw.summary(r, resource, obj))
		}
	}
	return attached, available
}

func (tw *Twin) summary(r *http.Request, resource string, obj Object) Object {
	return Object{
		"id":   obj["id"],
		"name": obj["name"],
		"url":  tw.itemURL(r, resource, obj["id"]),
	}
}

func idsOf(v any) []int {
	ids, _ := v.([]int)
	return ids
}

func addID(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// matches applies the listing filters a resource supports.
func (tw *Twin) matches(resource string, obj Object, q url.Values) bool {
	switch resource {
	case resourceAlert:
		if floor, ok := intOf(q.Get("id_greater_than")); ok && obj["id"].(int) <= floor {
			return false
		}
		if !boolParam(q, "filter_enabled") {
			return true
		}
		if boolParam(q, "only_alerts") && obj["status"] != "alert" {
			return false
		}
		if types := strings.Fields(q.Get("alert_types")); len(types) > 0 {
			return contains(types, stringOf(obj["alert_type"]))
		}
	case resourceEndpoint:
		if !boolParam(q, "filter_enabled") {
			return true
		}
		if kw := q.Get("keywords"); kw != "" {
			hay := stringOf(obj["ip_address"]) + " " + stringOf(obj["hostname"]) + " " + stringOf(obj["dns"])
			if !strings.Contains(hay, kw) {
				return false
			}
		}
		if statuses := q["statuses"]; len(statuses) > 0 && !contains(statuses, stringOf(obj["status"])) {
			return false
		}
		if groups := q["deploy_groups"]; len(groups) > 0 {
			id, _ := obj["_group"].(int)
			if !contains(groups, itoa(id)) {
				return false
			}
		}
	case resourceBackgroundTask:
		if q.Get("running") == "" {
			return true
		}
		return taskRunning(obj) == boolParam(q, "running")
	case resourceAuditLog:
		if !boolParam(q, "filter_enabled") {
			return true
		}
		ts := stringOf(obj["time"])
		if start := q.Get("start_date"); start != "" && ts < start {
			return false
		}
		if end := q.Get("end_date"); end != "" && ts > end {
			return false
		}
		if item := q.Get("item"); item != "" && !strings.Contains(stringOf(obj["item"]), item) {
			return false
		}
		if ids := q.Get("object_ids"); ids != "" && stringOf(obj["object_ids"]) != ids {
			return false
		}
		for param, field := range map[string]string{"username": "username", "category": "category", "event_type": "event_type_label"} {
			if values := q[param]; len(values) > 0 && !contains(values, stringOf(obj[field])) {
				return false
			}
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func taskRunning(obj Object) bool {
	switch obj["status"] {
	case "pending", "running", "paused":
		return true
	}
	return false
}

// advanceTask moves a task one step towards completion.
func advanceTask(obj Object) {
	switch obj["status"] {
	case "pending":
		obj["status"] = "running"
		obj["progress"] = 50
	case "running":
		obj["status"] = "complete"
		obj["progress"] = 100
	}
}

func (tw *Twin) newTask(taskType string) Object {
	return tw.tables[resourceBackgroundTask].insert(Object{
		"task_type": taskType,
		"status":    "pending",
		"progress":  0,
	})
}
