// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrInvalidParameter is returned when a parameter exists but has the wrong type.
var ErrInvalidParameter = errors.New("invalid parameter")

// ParamError describes a parameter that could not be converted to the requested type.
type ParamError struct {
	Key  string
	Want string
	Err  error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter '%s' must be %s: %v", e.Key, e.Want, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

func (e *ParamError) Is(target error) bool { return target == ErrInvalidParameter }

// Params is the parameter map of one task invocation as handed over by the
// workflow engine. A key with a nil value is treated as absent.
type Params map[string]any

// LoadFile reads task parameters from a YAML (or JSON) file.
func LoadFile(path string) (Params, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}
	var p Params
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// Has reports whether key is set to a non-nil value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the value of key as a string.
func (p Params) String(key string) (string, bool, error) {
	if !p.Has(key) {
		return "", false, nil
	}
	return toString(key, p[key])
}

// Int returns the value of key as an int.
func (p Params) Int(key string) (int, bool, error) {
	if !p.Has(key) {
		return 0, false, nil
	}
	return toInt(key, p[key])
}

// Bool returns the value of key as a bool.
func (p Params) Bool(key string) (bool, bool, error) {
	if !p.Has(key) {
		return false, false, nil
	}
	return toBool(key, p[key])
}

// StringList returns the value of key as a list of strings. A scalar value is
// returned as a one-element list.
func (p Params) StringList(key string) ([]string, bool, error) {
	if !p.Has(key) {
		return nil, false, nil
	}
	switch v := p[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, _, err := toString(fmt.Sprintf("%s[%d]", key, i), item)
			if err != nil {
				return nil, true, err
			}
			out = append(out, s)
		}
		return out, true, nil
	case []string:
		return append([]string(nil), v...), true, nil
	default:
		s, _, err := toString(key, v)
		if err != nil {
			return nil, true, err
		}
		return []string{s}, true, nil
	}
}

// ParamsList returns the value of key as a list of nested parameter maps.
// An absent key yields an empty list.
func (p Params) ParamsList(key string) ([]Params, error) {
	if !p.Has(key) {
		return nil, nil
	}
	items, ok := p[key].([]any)
	if !ok {
		return nil, &ParamError{Key: key, Want: "a list", Err: fmt.Errorf("got %T", p[key])}
	}
	out := make([]Params, 0, len(items))
	for i, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, &ParamError{Key: fmt.Sprintf("%s[%d]", key, i), Want: "a mapping", Err: err}
		}
		out = append(out, Params(m))
	}
	return out, nil
}

func toString(key string, v any) (string, bool, error) {
	switch v.(type) {
	case map[string]any, []any:
		return "", true, &ParamError{Key: key, Want: "a string", Err: fmt.Errorf("got %T", v)}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", true, &ParamError{Key: key, Want: "a string", Err: err}
	}
	return s, true, nil
}

// toInt accepts integers, whole-number floats and decimal strings. Strings
// are always base 10, so "025" is 25.
func toInt(key string, v any) (int, bool, error) {
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, &ParamError{Key: key, Want: "an integer", Err: err}
		}
		return i, true, nil
	case bool:
		return 0, true, &ParamError{Key: key, Want: "an integer", Err: fmt.Errorf("got %T", v)}
	case float32, float64:
		f := cast.ToFloat64(n)
		if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0, true, &ParamError{Key: key, Want: "an integer", Err: fmt.Errorf("got %v", f)}
		}
		return int(f), true, nil
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, true, &ParamError{Key: key, Want: "an integer", Err: err}
	}
	return i, true, nil
}

func toBool(key string, v any) (bool, bool, error) {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, true, &ParamError{Key: key, Want: "a boolean", Err: err}
	}
	return b, true, nil
}
