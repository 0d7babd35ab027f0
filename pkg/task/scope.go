// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"slices"

	"github.com/telekom/mailtask/pkg/secrets"
)

// AccessMode tells a Scope where a key may be read from.
type AccessMode int

const (
	// ParamOnly keys are read from task parameters and never from the secret store.
	ParamOnly AccessMode = iota
	// ParamOrSecret keys are read from task parameters first, then from the secret store.
	ParamOrSecret
	// SecretOnly keys are read from the secret store and never from task parameters.
	SecretOnly
)

func (m AccessMode) String() string {
	switch m {
	case ParamOrSecret:
		return "param-or-secret"
	case SecretOnly:
		return "secret-only"
	default:
		return "param-only"
	}
}

// AccessList declares which keys of an operator scope may be read from the
// secret store. It is consumed by the host engine's secret access control and
// enforced locally by Scope.
type AccessList struct {
	Scope        string
	SecretAccess []string
	SecretOnly   []string
}

// Mode returns the access mode for key.
func (a AccessList) Mode(key string) AccessMode {
	switch {
	case slices.Contains(a.SecretOnly, key):
		return SecretOnly
	case slices.Contains(a.SecretAccess, key):
		return ParamOrSecret
	default:
		return ParamOnly
	}
}

// Source records where a scoped value came from.
type Source string

const (
	SourceNone   Source = ""
	SourceParam  Source = "param"
	SourceSecret Source = "secret"
)

// Scope is the view of one invocation's parameters and secrets filtered
// through an AccessList.
type Scope struct {
	params  Params
	secrets secrets.Provider
	access  AccessList
}

// NewScope returns a Scope over params and the secrets of access.Scope in provider.
func NewScope(params Params, provider secrets.Provider, access AccessList) *Scope {
	if params == nil {
		params = Params{}
	}
	return &Scope{
		params:  params,
		secrets: secrets.Scoped(provider, access.Scope),
		access:  access,
	}
}

// Params returns the unfiltered task parameters.
func (s *Scope) Params() Params {
	return s.params
}

// AccessList returns the declaration the scope enforces.
func (s *Scope) AccessList() AccessList {
	return s.access
}

// Lookup returns the raw value for key honoring the access list.
func (s *Scope) Lookup(key string) (any, Source, error) {
	mode := s.access.Mode(key)
	if mode != SecretOnly && s.params.Has(key) {
		return s.params[key], SourceParam, nil
	}
	if mode == ParamOnly {
		return nil, SourceNone, nil
	}
	v, ok, err := s.secrets.Get(key)
	if err != nil {
		return nil, SourceNone, fmt.Errorf("failed to read secret %s.%s: %w", s.access.Scope, key, err)
	}
	if !ok {
		return nil, SourceNone, nil
	}
	return v, SourceSecret, nil
}

// Has reports whether key resolves to a value.
func (s *Scope) Has(key string) (bool, error) {
	_, src, err := s.Lookup(key)
	return src != SourceNone, err
}

// String resolves key as a string.
func (s *Scope) String(key string) (string, bool, error) {
	v, src, err := s.Lookup(key)
	if err != nil || src == SourceNone {
		return "", false, err
	}
	return toString(key, v)
}

// Int resolves key as an int.
func (s *Scope) Int(key string) (int, bool, error) {
	v, src, err := s.Lookup(key)
	if err != nil || src == SourceNone {
		return 0, false, err
	}
	return toInt(key, v)
}

// Bool resolves key as a bool.
func (s *Scope) Bool(key string) (bool, bool, error) {
	v, src, err := s.Lookup(key)
	if err != nil || src == SourceNone {
		return false, false, err
	}
	return toBool(key, v)
}
