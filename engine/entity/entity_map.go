package entity

import (
	"bytes"
	"sort"
)

// EntityMap maps replicable ids of one scene to entities
type EntityMap map[uint64]*Entity

// Add adds a new entity to EntityMap
func (em EntityMap) Add(entity *Entity) {
	em[entity.ID()] = entity
}

// Del deletes an entity from EntityMap
func (em EntityMap) Del(id uint64) {
	delete(em, id)
}

// Get returns the Entity of specified replicable id in EntityMap
func (em EntityMap) Get(id uint64) *Entity {
	return em[id]
}

// Sorted returns the entities ordered by id
func (em EntityMap) Sorted() []*Entity {
	entities := make([]*Entity, 0, len(em))
	for _, e := range em {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID() < entities[j].ID()
	})
	return entities
}

// EntitySet is the data structure for a set of entities
type EntitySet map[*Entity]struct{}

// Add adds an entity to the EntitySet
func (es EntitySet) Add(entity *Entity) {
	es[entity] = struct{}{}
}

// Del deletes an entity from the EntitySet
func (es EntitySet) Del(entity *Entity) {
	delete(es, entity)
}

// Contains returns if the entity is in the EntitySet
func (es EntitySet) Contains(entity *Entity) bool {
	_, ok := es[entity]
	return ok
}

func (es EntitySet) String() string {
	b := bytes.Buffer{}
	b.WriteString("{")
	first := true
	for entity := range es {
		if !first {
			b.WriteString(", ")
		} else {
			first = false
		}
		b.WriteString(entity.String())
	}
	b.WriteString("}")
	return b.String()
}
