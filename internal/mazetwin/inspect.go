package mazetwin

// AddAlert stores an alert as the appliance would when a decoy is touched and
// returns its id.
func (tw *Twin) AddAlert(alertType, status, decoyName string) int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	obj := tw.tables[resourceAlert].insert(Object{
		"alert_type": alertType,
		"status":     status,
		"decoy":      map[string]any{"name": decoyName},
		"decoy_name": decoyName,
		"timestamp":  tw.now().UTC().Format("2006-01-02T15:04:05"),
	})
	return obj["id"].(int)
}

// AddTask stores a pending background task and returns its id.
func (tw *Twin) AddTask(taskType string) int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.newTask(taskType)["id"].(int)
}

// Get returns a copy of a stored object without relation bookkeeping.
func (tw *Twin) Get(resource string, id int) (Object, bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	t, ok := tw.tables[resource]
	if !ok {
		return nil, false
	}
	obj, ok := t.get(id)
	if !ok {
		return nil, false
	}
	out := Object{}
	for k, v := range obj {
		out[k] = v
	}
	return out, true
}

// Set changes a field behind the client's back, as another admin would.
func (tw *Twin) Set(resource string, id int, field string, value any) bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	t, ok := tw.tables[resource]
	if !ok {
		return false
	}
	obj, ok := t.get(id)
	if !ok {
		return false
	}
	obj[field] = value
	return true
}

// Count returns the number of stored objects of a resource.
func (tw *Twin) Count(resource string) int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if t, ok := tw.tables[resource]; ok {
		return len(t.items)
	}
	return 0
}

// SOCSubmissions returns the batches received on the SOC API.
func (tw *Twin) SOCSubmissions() []SOCSubmission {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return append([]SOCSubmission(nil), tw.soc...)
}
