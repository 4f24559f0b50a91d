package mazetwin

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleCollection serves /{resource}/.
func (tw *Twin) handleCollection(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	schema, err := tw.schemas.Lookup(resource)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && schema.Listable:
		tw.list(w, r, resource, schema.Paginated)
	case r.Method == http.MethodPost && resource == resourceActiveSOC:
		tw.submitSOC(w, r)
	case r.Method == http.MethodPost && schema.Creatable:
		tw.create(w, r, resource)
	case r.Method == http.MethodDelete && resource == resourceAuditLog:
		tw.tables[resourceAuditLog].reset()
		tw.record("Audit Log", "Delete", "audit log", 0)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeDetail(w, http.StatusMethodNotAllowed, "Method \""+r.Method+"\" not allowed.")
	}
}

// handleSegment serves /{resource}/{id}/ and collection actions such as
// /{resource}/params/.
func (tw *Twin) handleSegment(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	seg := chi.URLParam(r, "seg")
	if _, err := tw.schemas.Lookup(resource); err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	id, err := strconv.Atoi(seg)
	if err != nil {
		tw.collectionAction(w, r, resource, seg)
		return
	}
	obj, ok := tw.tables[resource].get(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch resource {
		case resourceBackgroundTask:
			advanceTask(obj)
		case resourceDecoy:
			advanceDecoy(obj)
		}
		writeJSON(w, http.StatusOK, tw.render(r, resource, obj))
	case http.MethodPut, http.MethodPatch:
		tw.update(w, r, resource, obj)
	case http.MethodDelete:
		tw.tables[resource].remove(id)
		tw.record(resource, "Delete", stringOf(obj["name"]), id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeDetail(w, http.StatusMethodNotAllowed, "Method \""+r.Method+"\" not allowed.")
	}
}

// handleItemAction serves /{resource}/{id}/{action}/.
func (tw *Twin) handleItemAction(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	action := chi.URLParam(r, "action")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	t, ok := tw.tables[resource]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	obj, ok := t.get(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	tw.itemAction(w, r, resource, obj, action)
}

func (tw *Twin) list(w http.ResponseWriter, r *http.Request, resource string, paginated bool) {
	query := r.URL.Query()
	var matched []Object
	for _, obj := range tw.tables[resource].sorted() {
		if tw.matches(resource, obj, query) {
			matched = append(matched, tw.render(r, resource, obj))
		}
	}
	if matched == nil {
		matched = []Object{}
	}
	if !paginated {
		writeJSON(w, http.StatusOK, matched)
		return
	}

	page := 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	start := (page - 1) * tw.pageSize
	end := start + tw.pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	var next any
	if end < len(matched) {
		next = baseURL(r) + r.URL.Path + "?page=" + strconv.Itoa(page+1)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(matched),
		"next":     next,
		"previous": nil,
		"results":  matched[start:end],
	})
}

func (tw *Twin) create(w http.ResponseWriter, r *http.Request, resource string) {
	data, files, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	obj, fieldErrs := tw.newObject(resource, data, files)
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, fieldErrs)
		return
	}
	obj = tw.tables[resource].insert(obj)
	tw.record(resource, "Create", stringOf(obj["name"]), obj["id"].(int))
	writeJSON(w, http.StatusCreated, tw.render(r, resource, obj))
}

func (tw *Twin) update(w http.ResponseWriter, r *http.Request, resource string, obj Object) {
	data, files, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if resource == resourceAlertPolicy {
		if _, ok := data["to_status"]; !ok {
			writeFieldErrors(w, map[string]string{"to_status": "This field is required."})
			return
		}
	} else if !tw.editable(resource) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method \""+r.Method+"\" not allowed.")
		return
	}

	if r.Method == http.MethodPut {
		if errs := requiredFields(resource, data); len(errs) > 0 {
			writeFieldErrors(w, errs)
			return
		}
	}
	for k, v := range data {
		if k == "id" || k == "url" || strings.HasPrefix(k, "_") {
			continue
		}
		obj[k] = normalize(v)
	}
	for field, name := range files {
		obj[field] = name
	}
	tw.record(resource, "Update", stringOf(obj["name"]), obj["id"].(int))
	writeJSON(w, http.StatusOK, tw.render(r, resource, obj))
}

func (tw *Twin) editable(resource string) bool {
	s, err := tw.schemas.Lookup(resource)
	return err == nil && s.Editable
}

// readBody decodes a JSON or multipart body. Multipart file parts are returned
// by field name with their file names.
func readBody(r *http.Request) (map[string]any, map[string]string, error) {
	data := map[string]any{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, nil, err
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				data[k] = v[0]
			}
		}
		files := make(map[string]string)
		for k, v := range r.MultipartForm.File {
			if len(v) > 0 {
				files[k] = v[0].Filename
			}
		}
		return data, files, nil
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			return nil, nil, err
		}
	}
	return data, nil, nil
}

// normalize turns JSON numbers that are whole into ints so ids compare equal.
func normalize(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

func intOf(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func intsOf(v any) []int {
	list, _ := v.([]any)
	out := make([]int, 0, len(list))
	for _, item := range list {
		if n, ok := intOf(item); ok {
			out = append(out, n)
		}
	}
	return out
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func boolParam(q url.Values, key string) bool {
	b, _ := strconv.ParseBool(q.Get(key))
	return b
}
