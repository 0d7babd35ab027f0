// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Provider yields secret values by key. A missing key is not an error.
type Provider interface {
	Get(key string) (value string, ok bool, err error)
}

// MapProvider serves secrets from an in-memory map keyed by dotted names
// such as "mail.password".
type MapProvider map[string]string

// Get implements Provider.
func (m MapProvider) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// Keys returns the stored keys in sorted order.
func (m MapProvider) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadFile reads a YAML secrets file. Nested mappings are flattened into
// dotted keys, so
//
//	mail:
//	  password: s3cret
//
// yields the key "mail.password".
func LoadFile(path string) (MapProvider, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}
	out := MapProvider{}
	if err := flatten(out, "", raw); err != nil {
		return nil, fmt.Errorf("invalid secrets file %s: %w", path, err)
	}
	return out, nil
}

func flatten(out MapProvider, prefix string, in map[string]any) error {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(out, key, val); err != nil {
				return err
			}
		case string:
			out[key] = val
		case int, int64, float64, bool:
			out[key] = fmt.Sprint(val)
		case nil:
			// explicit null means "not set"
		default:
			return fmt.Errorf("secret %q must be a scalar, got %T", key, v)
		}
	}
	return nil
}

// EnvProvider reads secrets from environment variables. The key "mail.password"
// with prefix "MAILTASK_SECRET_" maps to MAILTASK_SECRET_MAIL_PASSWORD.
type EnvProvider struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider returns an EnvProvider backed by os.LookupEnv.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

// Get implements Provider.
func (p *EnvProvider) Get(key string) (string, bool, error) {
	name := p.Prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	v, ok := p.lookup(name)
	return v, ok, nil
}

// KeyringProvider reads secrets from the OS keychain (macOS Keychain, Secret
// Service on Linux, Windows Credential Manager). Keys are stored as the
// keyring "user" under a single service name.
type KeyringProvider struct {
	Service string
}

// Get implements Provider.
func (p *KeyringProvider) Get(key string) (string, bool, error) {
	v, err := keyring.Get(p.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring lookup of %q in service %q failed: %w", key, p.Service, err)
	}
	return v, true, nil
}

// Set stores a secret in the OS keychain.
func (p *KeyringProvider) Set(key, value string) error {
	if err := keyring.Set(p.Service, key, value); err != nil {
		return fmt.Errorf("failed to store %q in keyring service %q: %w", key, p.Service, err)
	}
	return nil
}

type scoped struct {
	parent Provider
	scope  string
}

// Scoped restricts p to keys under scope: Get("password") on the result reads
// "<scope>.password" from p.
func Scoped(p Provider, scope string) Provider {
	if p == nil {
		p = MapProvider{}
	}
	return &scoped{parent: p, scope: scope}
}

func (s *scoped) Get(key string) (string, bool, error) {
	return s.parent.Get(s.scope + "." + key)
}

// Open builds a provider from a CLI specification:
//
//	""                 no secrets
//	file:<path>        YAML secrets file
//	env                environment variables prefixed with MAILTASK_SECRET_
//	keyring:<service>  OS keychain entries of the given service
func Open(spec string) (Provider, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	switch kind {
	case "":
		return MapProvider{}, nil
	case "file":
		if arg == "" {
			return nil, errors.New("secrets spec 'file' requires a path, e.g. file:secrets.yaml")
		}
		return LoadFile(arg)
	case "env":
		return NewEnvProvider("MAILTASK_SECRET_"), nil
	case "keyring":
		if arg == "" {
			arg = "mailtask"
		}
		return &KeyringProvider{Service: arg}, nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q (expected file, env or keyring)", kind)
	}
}
