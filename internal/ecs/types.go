// Package ecs implements the structure-of-arrays component store and the
// entity table described in spec §3/§4.D/§4.E: typed field arrays per
// component, a presence bitmask, and per-entity metadata (type, client
// binding, component set).
package ecs

import (
	"lockstep/internal/alloc"
	"lockstep/internal/fixed"
)

// EntityID is the packed id from the alloc package, re-exported here so
// game code only needs to import one package for entity handles.
type EntityID = alloc.EntityID

// ComponentType names a registered component schema.
type ComponentType string

// FieldType is one of the four field kinds a schema may declare.
type FieldType int

const (
	FieldI32 FieldType = iota
	FieldU8
	FieldBool
	FieldF32
)

// FieldSpec describes one field of a component schema: its wire/storage
// type and default value (as a fixed-point scalar for numeric types, 0/1
// for bool).
type FieldSpec struct {
	Name    string
	Type    FieldType
	Default fixed.Scalar
}

// Schema is the fixed, ordered field list of one component type.
type Schema struct {
	Name   ComponentType
	Fields []FieldSpec
	// Sync controls whether this component type participates in snapshot
	// encoding and state hashing at all (spec §3).
	Sync bool
}

// FieldIndex returns the position of a field by name, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
