// Package policy defines named upload policies and batch validation against them.
// A policy bounds file count, size, MIME type and transfer concurrency for one
// class of uploads (such as "avatar").
package policy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnknownPolicy is returned when a policy key has no registered policy.
var ErrUnknownPolicy = fmt.Errorf("unknown upload policy")

// Policy is an immutable named upload configuration.
type Policy struct {
	// MaxSizeBytes is the per-file size limit.
	MaxSizeBytes int64
	// AllowedTypes lists accepted MIME types. Entries may be exact types
	// ("image/png") or doublestar patterns ("image/*").
	AllowedTypes []string
	// MaxFiles is the maximum batch size. Minimum 1.
	MaxFiles int
	// Concurrency is the number of parallel transfers for this policy. Minimum 1.
	Concurrency int
	// Folder is the destination folder prefix for generated storage keys.
	Folder string
}

// AllowsType reports whether the given MIME type matches any allowed entry.
func (p Policy) AllowsType(mimeType string) bool {
	for _, allowed := range p.AllowedTypes {
		if allowed == mimeType {
			return true
		}
		if !strings.Contains(allowed, "*") {
			continue
		}
		match, err := doublestar.Match(allowed, mimeType)
		if err == nil && match {
			return true
		}
	}
	return false
}

// Registry holds the known policies, looked up by key.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry creates a registry from the given policy set.
func NewRegistry(policies map[string]Policy) (Registry, error) {
	for key, p := range policies {
		if err := checkPolicy(p); err != nil {
			return Registry{}, fmt.Errorf("policy %s: %w", key, err)
		}
	}

	copied := make(map[string]Policy, len(policies))
	for key, p := range policies {
		copied[key] = p
	}
	return Registry{policies: copied}, nil
}

// DefaultRegistry returns the built-in policy set.
func DefaultRegistry() Registry {
	registry, err := NewRegistry(map[string]Policy{
		"avatar": {
			MaxSizeBytes: 1 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
			MaxFiles:     1,
			Concurrency:  3,
			Folder:       "avatars",
		},
		"gallery": {
			MaxSizeBytes: 5 * 1024 * 1024,
			AllowedTypes: []string{"image/*"},
			MaxFiles:     10,
			Concurrency:  3,
			Folder:       "gallery",
		},
		"attachment": {
			MaxSizeBytes: 25 * 1024 * 1024,
			AllowedTypes: []string{"application/pdf", "image/*", "text/plain"},
			MaxFiles:     5,
			Concurrency:  2,
			Folder:       "attachments",
		},
	})
	if err != nil {
		// The built-in set is validated by tests, this cannot happen at runtime.
		panic(err)
	}
	return registry
}

// IsZero reports whether the registry was never initialized. A zero registry
// knows no policies.
func (r Registry) IsZero() bool {
	return r.policies == nil
}

// Lookup returns the policy registered under key.
// The error wraps ErrUnknownPolicy if there is no such policy.
func (r Registry) Lookup(key string) (Policy, error) {
	p, ok := r.policies[key]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, key)
	}
	return p, nil
}

func checkPolicy(p Policy) error {
	if p.MaxSizeBytes <= 0 {
		return fmt.Errorf("max size must be positive")
	}
	if len(p.AllowedTypes) == 0 {
		return fmt.Errorf("allowed types must not be empty")
	}
	if p.MaxFiles < 1 {
		return fmt.Errorf("max files must be at least 1")
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if p.Folder == "" {
		return fmt.Errorf("folder must not be empty")
	}
	return nil
}
