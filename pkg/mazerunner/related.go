package mazerunner

import (
	"context"
)

// RelatedCollection lists the resources embedded in a parent entity, for
// example the decoys attached to a service. Its members are whatever the parent
// carried at its last fetch.
type RelatedCollection struct {
	parent *Entity
	field  string
	schema Schema
}

func newRelatedCollection(parent *Entity, field string, schema Schema) *RelatedCollection {
	return &RelatedCollection{parent: parent, field: field, schema: schema}
}

// Field returns the parent field this collection is read from.
func (r *RelatedCollection) Field() string { return r.field }

// Parent returns the owning entity.
func (r *RelatedCollection) Parent() *Entity { return r.parent }

// Len returns the number of embedded members.
func (r *RelatedCollection) Len() int { return len(r.items()) }

// List returns one handle per embedded member. Members are issued by the
// session collection of their type, so bare-id members still know their URL
// and a Delete through that collection invalidates them.
func (r *RelatedCollection) List() []*Entity {
	coll := r.parent.client.collection(r.schema)
	items := r.items()
	out := make([]*Entity, 0, len(items))
	for _, item := range items {
		out = append(out, coll.wrap(item))
	}
	return out
}

// IDs returns the ids of the embedded members.
func (r *RelatedCollection) IDs() []int {
	items := r.items()
	ids := make([]int, 0, len(items))
	for _, item := range items {
		if id, ok := intValue(item["id"]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Contains reports whether a member with the given id is embedded.
func (r *RelatedCollection) Contains(id int) bool {
	for _, got := range r.IDs() {
		if got == id {
			return true
		}
	}
	return false
}

// Refresh re-reads the parent and with it the membership.
func (r *RelatedCollection) Refresh(ctx context.Context) error {
	return r.parent.Refresh(ctx)
}

func (r *RelatedCollection) items() []map[string]any {
	raw, _ := r.parent.fields[r.field].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		switch item := v.(type) {
		case map[string]any:
			out = append(out, item)
		default:
			// Some relations are serialized as bare ids.
			if id, ok := intValue(item); ok {
				out = append(out, map[string]any{"id": id})
			}
		}
	}
	return out
}
