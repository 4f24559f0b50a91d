package mazetwin

import (
	"sort"
	"time"
)

// Object is the stored representation of one resource.
type Object map[string]any

type table struct {
	next  int
	items map[int]Object
}

func newTable() *table {
	return &table{next: 1, items: make(map[int]Object)}
}

func (t *table) insert(obj Object) Object {
	id := t.next
	t.next++
	obj["id"] = id
	t.items[id] = obj
	return obj
}

func (t *table) get(id int) (Object, bool) {
	obj, ok := t.items[id]
	return obj, ok
}

func (t *table) remove(id int) bool {
	if _, ok := t.items[id]; !ok {
		return false
	}
	delete(t.items, id)
	return true
}

// sorted returns the objects in id order.
func (t *table) sorted() []Object {
	ids := make([]int, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Object, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.items[id])
	}
	return out
}

func (t *table) reset() {
	t.next = 1
	t.items = make(map[int]Object)
}

// SOCSubmission is one batch received on the SOC API.
type SOCSubmission struct {
	Source string
	Events []map[string]any
}

// record appends an audit log line. Callers hold the lock.
func (tw *Twin) record(category, eventType, item string, objectID int) {
	tw.tables[resourceAuditLog].insert(Object{
		"username":         tw.username,
		"category":         category,
		"event_type_label": eventType,
		"item":             item,
		"object_ids":       objectIDString(objectID),
		"time":             tw.now().UTC().Format("2006-01-02T15:04:05"),
	})
}

func objectIDString(id int) string {
	if id == 0 {
		return ""
	}
	return itoa(id)
}

func (tw *Twin) now() time.Time {
	if tw.clock != nil {
		return tw.clock()
	}
	return time.Now()
}
