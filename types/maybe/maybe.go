package maybe

import "encoding/json"

type Maybe[T any] struct {
	value T
	valid bool
}

func Some[T any](value T) Maybe[T] {
	return Maybe[T]{
		value: value,
		valid: true,
	}
}

func None[T any]() Maybe[T] {
	return Maybe[T]{
		valid: false,
	}
}

func (m Maybe[T]) IsValid() bool {
	return m.valid
}

func (m Maybe[T]) Value() T {
	return m.value
}

// MarshalJSON encodes None as null.
func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}
