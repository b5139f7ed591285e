package settings

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Model describes an entity type the host application can bill.
type Model struct {
	AppLabel   string
	Name       string
	Fields     []string
	Properties []string
}

// Label returns the "app_label.model_name" identifier.
func (m Model) Label() string {
	return m.AppLabel + "." + m.Name
}

// HasAttr reports whether the model exposes name as a field or a property.
func (m Model) HasAttr(name string) bool {
	return slices.Contains(m.Fields, name) || slices.Contains(m.Properties, name)
}

// IsZero reports whether m is the zero Model.
func (m Model) IsZero() bool {
	return m.AppLabel == "" && m.Name == ""
}

// DefaultUserModel returns the descriptor of the stock user account model.
func DefaultUserModel() Model {
	return Model{
		AppLabel: "auth",
		Name:     "User",
		Fields: []string{
			"id", "password", "last_login", "is_superuser", "username",
			"first_name", "last_name", "email", "is_staff", "is_active", "date_joined",
		},
	}
}

// Registry maps model labels to models and dotted paths to hook functions.
// The host application fills it at start-up, before Resolve runs.
type Registry struct {
	mu        sync.RWMutex
	userModel Model
	models    map[string]Model
	modules   map[string]map[string]any
}

// NewRegistry creates a registry whose fallback subscriber model is userModel.
// A non-zero userModel is also registered under its own label.
func NewRegistry(userModel Model) *Registry {
	r := &Registry{
		userModel: userModel,
		models:    make(map[string]Model),
		modules:   make(map[string]map[string]any),
	}
	if !userModel.IsZero() {
		r.models[modelKey(userModel.AppLabel, userModel.Name)] = userModel
	}
	return r
}

// UserModel returns the fallback subscriber model.
func (r *Registry) UserModel() Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userModel
}

// RegisterModel makes m available to GetModel under its label.
func (r *Registry) RegisterModel(m Model) error {
	if m.AppLabel == "" || m.Name == "" || strings.Contains(m.AppLabel, ".") || strings.Contains(m.Name, ".") {
		return fmt.Errorf("register model %q: %w", m.Label(), ErrInvalidModelLabel)
	}

	key := modelKey(m.AppLabel, m.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[key]; exists {
		return fmt.Errorf("register model %q: already registered", m.Label())
	}
	r.models[key] = m
	return nil
}

// GetModel looks a model up by "app_label.model_name". The model name is
// matched case-insensitively.
func (r *Registry) GetModel(label string) (Model, error) {
	parts := strings.Split(label, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Model{}, fmt.Errorf("%q: %w", label, ErrInvalidModelLabel)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelKey(parts[0], parts[1])]
	if !ok {
		return Model{}, fmt.Errorf("%q: %w", label, ErrModelNotRegistered)
	}
	return m, nil
}

// Register binds value to the dotted path "module.attr". The module part may
// itself contain dots; the attribute is everything after the last one.
func (r *Registry) Register(path string, value any) error {
	module, attr, ok := splitPath(path)
	if !ok || module == "" || attr == "" {
		return fmt.Errorf("register %q: path must be of the form 'module.attr'", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	attrs, exists := r.modules[module]
	if !exists {
		attrs = make(map[string]any)
		r.modules[module] = attrs
	}
	if _, dup := attrs[attr]; dup {
		return fmt.Errorf("register %q: already registered", path)
	}
	attrs[attr] = value
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(path string, value any) {
	if err := r.Register(path, value); err != nil {
		panic(err)
	}
}

func (r *Registry) hasModule(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

func (r *Registry) lookupAttr(module, attr string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.modules[module][attr]
	return v, ok
}

func modelKey(appLabel, name string) string {
	return appLabel + "." + strings.ToLower(name)
}

func splitPath(path string) (module, attr string, ok bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
