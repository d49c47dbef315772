package chunkstore

import "strings"

// ComponentDescriptor identifies the semantic type of one logged value
// column, optionally scoped to the archetype and field that produced it so
// two uses of the same component type on one entity stay distinguishable.
// It is the column key of a chunk and part of every cache key.
type ComponentDescriptor struct {
	// Component names the semantic type, e.g. "Position3D". Required.
	Component string

	// Archetype names the owning archetype, e.g. "Points3D". Optional.
	Archetype string

	// Field names the archetype field, e.g. "positions". Optional.
	Field string
}

// NewComponentDescriptor returns a descriptor carrying only a component
// name.
func NewComponentDescriptor(component string) ComponentDescriptor {
	return ComponentDescriptor{Component: component}
}

// WithArchetype returns a copy of d scoped to archetype and field.
func (d ComponentDescriptor) WithArchetype(archetype, field string) ComponentDescriptor {
	d.Archetype = archetype
	d.Field = field
	return d
}

// IsZero reports whether the descriptor is empty.
func (d ComponentDescriptor) IsZero() bool {
	return d == ComponentDescriptor{}
}

// String renders the descriptor as "Archetype:Component#field", omitting
// the parts not set.
func (d ComponentDescriptor) String() string {
	var b strings.Builder
	if d.Archetype != "" {
		b.WriteString(d.Archetype)
		b.WriteByte(':')
	}
	b.WriteString(d.Component)
	if d.Field != "" {
		b.WriteByte('#')
		b.WriteString(d.Field)
	}
	return b.String()
}
