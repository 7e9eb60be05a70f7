package models

// Reference points at an entity either by id alone or with the entity attached.
// The zero value is an empty ByID reference.
type Reference[T any] struct {
	id    string
	value *T
}

// ByID returns an unresolved reference.
func ByID[T any](id string) Reference[T] {
	return Reference[T]{id: id}
}

// Resolved returns a reference carrying its entity.
func Resolved[T any](id string, value T) Reference[T] {
	return Reference[T]{id: id, value: &value}
}

// ID returns the referenced id.
func (r Reference[T]) ID() string {
	return r.id
}

// IsResolved reports whether the entity is attached.
func (r Reference[T]) IsResolved() bool {
	return r.value != nil
}

// Value returns the attached entity, if any.
func (r Reference[T]) Value() (T, bool) {
	if r.value == nil {
		var zero T
		return zero, false
	}
	return *r.value, true
}
