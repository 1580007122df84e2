package ops

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds registered operations keyed by command name, plus
// keyboard labels that resolve to the same operations.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]Op
	labels map[string]string
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:    make(map[string]Op),
		labels: make(map[string]string),
	}
}

// Register adds an operation. Returns an error if the name is already registered.
func (r *Registry) Register(op Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(op.Name())
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("op already registered: %s", name)
	}
	r.ops[name] = op
	return nil
}

// Label makes a keyboard button label resolve to the named operation.
func (r *Registry) Label(label, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return fmt.Errorf("empty label for op %s", name)
	}
	if existing, exists := r.labels[key]; exists && existing != name {
		return fmt.Errorf("label %q already bound to %s", label, existing)
	}
	r.labels[key] = strings.ToLower(name)
	return nil
}

// Get returns the operation with the given name, or nil if not found.
func (r *Registry) Get(name string) Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[strings.ToLower(name)]
}

// Resolve maps message text to an operation. Text matches either a
// slash command ("/status", "/status@host_bot") or a keyboard label,
// case-insensitively. It returns nil for anything else.
func (r *Registry) Resolve(text string) Op {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if name := parseCommand(text); name != "" {
		return r.ops[name]
	}
	if name, ok := r.labels[strings.ToLower(text)]; ok {
		return r.ops[name]
	}
	return nil
}

// List returns all registered operations sorted by name.
func (r *Registry) List() []Op {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Op, len(names))
	for i, name := range names {
		result[i] = r.ops[name]
	}
	return result
}

// parseCommand extracts the command name from "/command" or
// "/command@botname". Text with arguments is not a command.
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") || strings.ContainsAny(text, " \t\n") {
		return ""
	}
	cmd := text[1:]
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
