// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

// Option holds a value that may be absent.
type Option[T any] struct {
	value T
	valid bool
}

// Some returns a present Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, valid: true}
}

// None returns an absent Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsPresent reports whether the option holds a value.
func (o Option[T]) IsPresent() bool {
	return o.valid
}

// Get returns the held value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.valid
}

// OrElse returns the held value, or fallback when absent.
func (o Option[T]) OrElse(fallback T) T {
	if o.valid {
		return o.value
	}
	return fallback
}

// Or returns o when present, otherwise other.
func (o Option[T]) Or(other Option[T]) Option[T] {
	if o.valid {
		return o
	}
	return other
}

// Precedence returns the first present candidate. Candidates are ordered from
// highest to lowest priority. When none is present the field is required and
// a MissingRequiredFieldError is returned.
func Precedence[T any](field string, candidates ...Option[T]) (T, error) {
	for _, c := range candidates {
		if v, ok := c.Get(); ok {
			return v, nil
		}
	}
	var zero T
	return zero, &MissingRequiredFieldError{Field: field}
}
