package world

import (
	"sort"

	"github.com/quarry-engine/quarry/qql"
	"github.com/quarry-engine/quarry/types/entity"
)

// EvaluateQQL parses and runs a textual query against the world, returning
// the matching entity IDs ordered by ID. Component names resolve through the
// world's registry.
func (w *World) EvaluateQQL(text string) ([]entity.ID, error) {
	q, err := qql.Parse(text, w.registry.ByName)
	if err != nil {
		return nil, err
	}

	var out []entity.ID
	if w.manager != nil {
		for it := w.manager.SearchFrom(q.Filter, 0); it.HasNext(); {
			arch := w.manager.Archetype(it.Next())
			for _, id := range arch.Entities() {
				if !arch.HasEntity(id) {
					continue
				}
				if w.tagsSatisfied(id, q) {
					out = append(out, id)
				}
			}
		}
	} else {
		for id, e := range w.entities {
			if !q.Filter.MatchesComponents(e.ComponentTypes()) {
				continue
			}
			if w.tagsSatisfied(id, q) {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (w *World) tagsSatisfied(id entity.ID, q *qql.Query) bool {
	for _, tag := range q.Tags {
		if !w.HasTag(id, tag) {
			return false
		}
	}
	for _, tag := range q.WithoutTags {
		if w.HasTag(id, tag) {
			return false
		}
	}
	return true
}
