package mazetwin

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"net"
	"net/http"
	"net/url"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

// collectionAction serves /{resource}/{action}/. Callers hold the lock.
func (tw *Twin) collectionAction(w http.ResponseWriter, r *http.Request, resource, action string) {
	schema, _ := tw.schemas.Lookup(resource)
	if action == "params" {
		if !schema.HasParams || r.Method != http.MethodGet {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, tw.params(resource))
		return
	}

	data, _, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()

	switch resource + ":" + action {
	case resourceDeploymentGroup + ":test_deployment_credentials":
		if stringOf(data["password"]) == "" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "reason": "Logon failure: unknown user name or bad password."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case resourceDeploymentGroup + ":auto_deploy_groups":
		for _, id := range intsOf(data["deployment_groups_ids"]) {
			if _, ok := tw.tables[resourceDeploymentGroup].get(id); !ok {
				writeFieldErrors(w, map[string]string{"deployment_groups_ids": "Invalid pk \"" + itoa(id) + "\" - object does not exist."})
				return
			}
		}
		tw.startTask(w, r, "auto_deploy_groups")
	case resourceDeploymentGroup + ":deploy_all":
		writeFile(w, "application/zip", []byte("installers for "+query.Get("os")))

	case resourceAlert + ":export":
		tw.writeCSV(w, resource, query, []string{"id", "alert_type", "status"})
	case resourceAlert + ":delete_selected":
		tw.deleteSelected(resource, data, query, "selected_alert_ids")
		writeJSON(w, http.StatusOK, map[string]any{})

	case resourceEndpoint + ":reassign_selected":
		group, hasGroup := intOf(data["to_group"])
		if hasGroup {
			if _, ok := tw.tables[resourceDeploymentGroup].get(group); !ok {
				writeFieldErrors(w, map[string]string{"to_group": "Invalid pk \"" + itoa(group) + "\" - object does not exist."})
				return
			}
		}
		for _, id := range intsOf(data["selected_endpoints_ids"]) {
			obj, ok := tw.tables[resourceEndpoint].get(id)
			if !ok {
				continue
			}
			if hasGroup {
				obj["_group"] = group
			} else {
				delete(obj, "_group")
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceEndpoint + ":clean_selected":
		if stringOf(data["username"]) == "" {
			writeFieldErrors(w, map[string]string{"username": "This field is required."})
			return
		}
		for _, obj := range tw.selected(resourceEndpoint, data, query, "selected_endpoints_ids", "clean_all_filtered") {
			obj["status"] = "not_installed"
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceEndpoint + ":delete_selected":
		tw.deleteSelected(resource, data, query, "selected_endpoints_ids")
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceEndpoint + ":export":
		tw.writeCSV(w, resource, query, []string{"id", "ip_address", "hostname", "dns", "status"})
	case resourceEndpoint + ":filter_data":
		groups := []Object{}
		for _, g := range tw.tables[resourceDeploymentGroup].sorted() {
			groups = append(groups, tw.summary(r, resourceDeploymentGroup, g))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"statuses":          []string{"not_installed", "installed", "failed"},
			"deployment_groups": groups,
		})
	case resourceEndpoint + ":status_dashboard":
		counts := map[string]int{}
		for _, obj := range tw.tables[resourceEndpoint].sorted() {
			counts[stringOf(obj["status"])]++
		}
		writeJSON(w, http.StatusOK, counts)

	case resourceBackgroundTask + ":acknowledge_all":
		for _, obj := range tw.tables[resourceBackgroundTask].sorted() {
			if !taskRunning(obj) {
				tw.tables[resourceBackgroundTask].remove(obj["id"].(int))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case resourceAlertPolicy + ":reset_all":
		for _, obj := range tw.tables[resourceAlertPolicy].sorted() {
			obj["to_status"] = obj["default_status"]
		}
		tw.record("Alert Policy", "Reset", "all alert policies", 0)
		writeJSON(w, http.StatusOK, map[string]any{})

	case resourceCIDRMapping + ":generate_all_endpoints":
		for _, m := range tw.tables[resourceCIDRMapping].sorted() {
			tw.generateEndpoint(m)
		}
		tw.startTask(w, r, "generate_all_endpoints")

	case resourceForensicPuller + ":run_on_ip_list":
		ips, _ := data["ip_list"].([]any)
		if len(ips) == 0 {
			writeFieldErrors(w, map[string]string{"ip_list": "This field is required."})
			return
		}
		for _, ip := range ips {
			tw.tables[resourceAlert].insert(Object{
				"alert_type": "forensic_puller",
				"status":     "alert",
				"decoy_name": "",
				"ip_address": stringOf(ip),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	default:
		writeDetail(w, http.StatusNotFound, "Not found.")
	}
}

// itemAction serves /{resource}/{id}/{action}/. Callers hold the lock.
func (tw *Twin) itemAction(w http.ResponseWriter, r *http.Request, resource string, obj Object, action string) {
	data, _, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	id := obj["id"].(int)

	switch resource + ":" + action {
	case resourceDecoy + ":power_on":
		obj["machine_status"] = mazerunner.MachineStatusBooting
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceDecoy + ":power_off":
		obj["machine_status"] = mazerunner.MachineStatusInactive
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceDecoy + ":recreate":
		obj["machine_status"] = mazerunner.MachineStatusConfiguring
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceDecoy + ":test_dns":
		if stringOf(obj["dns_address"]) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"non_field_errors": []string{"Failed to resolve address for decoy " + stringOf(obj["hostname"])},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceDecoy + ":download":
		writeFile(w, "application/octet-stream", []byte("ova image of "+stringOf(obj["name"])))

	case resourceService + ":connect_to_decoy", resourceService + ":detach_from_decoy":
		decoyID, ok := intOf(data["decoy_id"])
		if _, exists := tw.tables[resourceDecoy].get(decoyID); !ok || !exists {
			writeFieldErrors(w, map[string]string{"decoy_id": "Invalid decoy."})
			return
		}
		if action == "connect_to_decoy" {
			obj["_decoys"] = addID(idsOf(obj["_decoys"]), decoyID)
		} else {
			obj["_decoys"] = removeID(idsOf(obj["_decoys"]), decoyID)
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case resourceBreadcrumb + ":connect_to_service", resourceBreadcrumb + ":detach_from_service":
		serviceID, ok := intOf(data["service_id"])
		if _, exists := tw.tables[resourceService].get(serviceID); !ok || !exists {
			writeFieldErrors(w, map[string]string{"service_id": "Invalid service."})
			return
		}
		if action == "connect_to_service" {
			obj["_services"] = addID(idsOf(obj["_services"]), serviceID)
		} else {
			obj["_services"] = removeID(idsOf(obj["_services"]), serviceID)
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceBreadcrumb + ":add_to_group", resourceBreadcrumb + ":remove_from_group":
		groupID, ok := intOf(data["deployment_group_id"])
		if _, exists := tw.tables[resourceDeploymentGroup].get(groupID); !ok || !exists {
			writeFieldErrors(w, map[string]string{"deployment_group_id": "Invalid deployment group."})
			return
		}
		if action == "add_to_group" {
			obj["_groups"] = addID(idsOf(obj["_groups"]), groupID)
		} else {
			obj["_groups"] = removeID(idsOf(obj["_groups"]), groupID)
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case resourceBreadcrumb + ":deploy", resourceDeploymentGroup + ":deploy":
		if query.Get("os") == "" {
			writeFieldErrors(w, map[string]string{"os": "This field is required."})
			return
		}
		writeFile(w, "application/octet-stream", []byte(query.Get("download_format")+" installer of "+stringOf(obj["name"])))

	case resourceDeploymentGroup + ":check_conflicts":
		writeJSON(w, http.StatusOK, []any{})
	case resourceDeploymentGroup + ":auto_deploy":
		if stringOf(data["install_method"]) == "" {
			writeFieldErrors(w, map[string]string{"install_method": "This field is required."})
			return
		}
		tw.startTask(w, r, "auto_deploy")

	case resourceAlert + ":download_image_file", resourceAlert + ":download_memory_dump_file":
		writeFile(w, "application/octet-stream", []byte(action+" "+itoa(id)))
	case resourceAlert + ":download_network_capture_file":
		writeFile(w, "application/vnd.tcpdump.pcap", []byte("pcap "+itoa(id)))
	case resourceAlert + ":download_stix_file":
		writeFile(w, "application/xml", []byte("<stix:STIX_Package id=\""+itoa(id)+"\"/>"))

	case resourceBackgroundTask + ":stop":
		if taskRunning(obj) {
			obj["status"] = mazerunner.TaskStatusStopped
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case resourceCIDRMapping + ":generate_endpoints":
		tw.generateEndpoint(obj)
		tw.startTask(w, r, "generate_endpoints")

	default:
		writeDetail(w, http.StatusNotFound, "Not found.")
	}
}

// submitSOC stores one batch posted to the SOC API.
func (tw *Twin) submitSOC(w http.ResponseWriter, r *http.Request) {
	data, _, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	source := stringOf(data["source"])
	if source == "" {
		writeFieldErrors(w, map[string]string{"source": "This field is required."})
		return
	}
	list, _ := data["data"].([]any)
	sub := SOCSubmission{Source: source}
	for _, item := range list {
		if event, ok := item.(map[string]any); ok {
			sub.Events = append(sub.Events, event)
		}
	}
	tw.soc = append(tw.soc, sub)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (tw *Twin) params(resource string) map[string]any {
	switch resource {
	case resourceDecoy:
		return map[string]any{
			"os":      []string{"Windows_7", "Ubuntu_1404"},
			"vm_type": []string{"KVM", "OVA", "EC2"},
		}
	case resourceService:
		return map[string]any{"service_type": []string{"ssh", "http", "smb", "rdp", "git"}}
	case resourceBreadcrumb:
		return map[string]any{"breadcrumb_type": []string{"ssh", "mysql", "cookie", "smb", "rdp_link"}}
	case resourceAlert:
		return map[string]any{"alert_types": []string{"code", "http", "share", "ssh", "rdp", "forensic_puller"}}
	case resourceAlertPolicy:
		return map[string]any{"to_status": []int{mazerunner.PolicyIgnore, mazerunner.PolicyMute, mazerunner.PolicyAlert}}
	}
	return map[string]any{}
}

// startTask creates a background task and answers with its representation.
func (tw *Twin) startTask(w http.ResponseWriter, r *http.Request, taskType string) {
	task := tw.newTask(taskType)
	writeJSON(w, http.StatusOK, tw.render(r, resourceBackgroundTask, task))
}

// selected resolves the objects named by a *_selected request: the listed ids,
// or everything matching the filter query when allKey is set in the body.
func (tw *Twin) selected(resource string, data map[string]any, q url.Values, idsKey, allKey string) []Object {
	if all, _ := data[allKey].(bool); all {
		var out []Object
		for _, obj := range tw.tables[resource].sorted() {
			if tw.matches(resource, obj, q) {
				out = append(out, obj)
			}
		}
		return out
	}
	var out []Object
	for _, id := range intsOf(data[idsKey]) {
		if obj, ok := tw.tables[resource].get(id); ok {
			out = append(out, obj)
		}
	}
	return out
}

func (tw *Twin) deleteSelected(resource string, data map[string]any, q url.Values, idsKey string) {
	for _, obj := range tw.selected(resource, data, q, idsKey, "delete_all_filtered") {
		id := obj["id"].(int)
		tw.tables[resource].remove(id)
		tw.record(resource, "Delete", stringOf(obj["name"]), id)
	}
}

func (tw *Twin) writeCSV(w http.ResponseWriter, resource string, q url.Values, columns []string) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Write(columns)
	for _, obj := range tw.tables[resource].sorted() {
		if !tw.matches(resource, obj, q) {
			continue
		}
		row := make([]string, len(columns))
		for i, col := range columns {
			if n, ok := obj[col].(int); ok {
				row[i] = itoa(n)
			} else {
				row[i] = stringOf(obj[col])
			}
		}
		cw.Write(row)
	}
	cw.Flush()
	writeFile(w, "text/csv", buf.Bytes())
}

// generateEndpoint adds an endpoint for the first host address of a CIDR
// mapping unless one exists.
func (tw *Twin) generateEndpoint(mapping Object) {
	_, network, err := net.ParseCIDR(stringOf(mapping["cidr_block"]))
	if err != nil || network.IP.To4() == nil {
		return
	}
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, binary.BigEndian.Uint32(network.IP.To4())+1)
	addr := ip.String()
	for _, obj := range tw.tables[resourceEndpoint].sorted() {
		if obj["ip_address"] == addr {
			return
		}
	}
	ep := Object{"ip_address": addr, "hostname": "", "dns": "", "status": "not_installed"}
	if group, ok := intOf(mapping["deployment_group"]); ok && group > 0 {
		ep["_group"] = group
	}
	tw.tables[resourceEndpoint].insert(ep)
}

// advanceDecoy finishes a boot started by power_on on the next read.
func advanceDecoy(obj Object) {
	switch obj["machine_status"] {
	case mazerunner.MachineStatusBooting, mazerunner.MachineStatusConfiguring:
		obj["machine_status"] = mazerunner.MachineStatusActive
	}
}
