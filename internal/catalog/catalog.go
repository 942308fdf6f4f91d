// Package catalog holds the registry of tools the assistant can invoke.
// Descriptors are immutable once registered; only the enabled flag moves.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/castaldi/frank/internal/logging"
)

// Category is a closed set of tool domains.
type Category string

const (
	CategoryNavigation  Category = "navigation"
	CategoryWeather     Category = "weather"
	CategoryVehicle     Category = "vehicle"
	CategoryMaintenance Category = "maintenance"
)

// KnownCategories lists every valid category value.
var KnownCategories = []Category{
	CategoryNavigation,
	CategoryWeather,
	CategoryVehicle,
	CategoryMaintenance,
}

// IsKnownCategory reports whether s names one of the known categories.
func IsKnownCategory(s string) bool {
	for _, c := range KnownCategories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ParamSpec describes one parameter a tool accepts.
type ParamSpec struct {
	Type        string `json:"type"` // "string", "bool", "number"
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Descriptor is an immutable catalog entry for one tool.
type Descriptor struct {
	Name                 string               `json:"name"`
	Category             Category             `json:"category"`
	Description          string               `json:"description"`
	Parameters           map[string]ParamSpec `json:"parameters"`
	RequiresConfirmation bool                 `json:"requiresConfirmation"`

	// Execute runs the tool. Nil means the tool is declarative only.
	Execute func(ctx context.Context, params map[string]any) (*ExecResult, error) `json:"-"`
}

// RequiredParams returns the names of required parameters in sorted order.
func (d *Descriptor) RequiredParams() []string {
	var names []string
	for name, spec := range d.Parameters {
		if spec.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ExecStatus is the outcome class of a tool execution.
type ExecStatus string

const (
	ExecSuccess              ExecStatus = "success"
	ExecError                ExecStatus = "error"
	ExecPartial              ExecStatus = "partial"
	ExecRequiresConfirmation ExecStatus = "requires_confirmation"
)

// ExecResult is what a tool execution returns.
type ExecResult struct {
	Status  ExecStatus     `json:"status"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolDisabled      = errors.New("tool disabled")
	ErrAlreadyRegistered = errors.New("tool already registered")
)

type entry struct {
	desc    *Descriptor
	enabled bool
}

// Registry is the concurrency-safe tool index.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log.Sub("catalog"),
	}
}

// Register adds a descriptor. It fails if the name is already taken.
func (r *Registry) Register(desc *Descriptor, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, desc.Name)
	}
	r.entries[desc.Name] = &entry{desc: desc, enabled: enabled}
	r.log.Info().Str("tool", desc.Name).Str("category", string(desc.Category)).Bool("enabled", enabled).Msg("tool registered")
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		return false
	}
	delete(r.entries, name)
	r.log.Info().Str("tool", name).Msg("tool unregistered")
	return true
}

// Get returns the descriptor for an enabled tool. Disabled tools are
// reported as not found.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[name]
	if !exists || !e.enabled {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.desc, nil
}

// ByCategory returns all enabled descriptors in a category, sorted by name.
func (r *Registry) ByCategory(cat Category) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, e := range r.entries {
		if e.enabled && e.desc.Category == cat {
			out = append(out, e.desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns enabled descriptors whose name or description contains
// the query, case-insensitively.
func (r *Registry) Search(query string) []*Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, e := range r.entries {
		if !e.enabled {
			continue
		}
		if strings.Contains(strings.ToLower(e.desc.Name), q) ||
			strings.Contains(strings.ToLower(e.desc.Description), q) {
			out = append(out, e.desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled flips the enable flag for a tool.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.entries[name]
	if !exists {
		return false
	}
	e.enabled = enabled
	r.log.Info().Str("tool", name).Bool("enabled", enabled).Msg("tool enable flag changed")
	return true
}

// Names returns the names of all enabled tools, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, e := range r.entries {
		if e.enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered tools, enabled or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Execute dispatches a tool by name. Unknown or disabled tools produce a
// structured error result rather than a panic, and any error returned by
// the tool itself is folded into the result.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) *ExecResult {
	desc, err := r.Get(name)
	if err != nil {
		return &ExecResult{Status: ExecError, Message: fmt.Sprintf("tool %q non disponibile", name)}
	}
	if desc.Execute == nil {
		return &ExecResult{Status: ExecError, Message: fmt.Sprintf("tool %q non eseguibile", name)}
	}
	res, err := desc.Execute(ctx, params)
	if err != nil {
		return &ExecResult{Status: ExecError, Message: err.Error()}
	}
	if res == nil {
		return &ExecResult{Status: ExecError, Message: "risultato vuoto dal tool"}
	}
	return res
}
