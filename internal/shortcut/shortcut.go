// Package shortcut maps key presses onto dashboard actions.
package shortcut

import (
	"strings"
	"sync"
)

type Action string

const (
	ActionFocusSearch Action = "focus-search"
	ActionOpenAddForm Action = "open-add-form"
	ActionCloseModal  Action = "close-modal"
)

const keyEscape = "Escape"

type (
	// Target is the element that had focus when the key was pressed.
	Target struct {
		Tag             string `json:"tag"`
		ContentEditable bool   `json:"contentEditable"`
	}

	KeyEvent struct {
		Key    string `json:"key"`
		Ctrl   bool   `json:"ctrl"`
		Meta   bool   `json:"meta"`
		Shift  bool   `json:"shift"`
		Target Target `json:"target"`
	}

	// Binding fires Action for Key. Modifier accepts either Ctrl or Meta so
	// the same binding works on every platform.
	Binding struct {
		Key         string `json:"key"`
		Modifier    bool   `json:"modifier"`
		Shift       bool   `json:"shift"`
		Action      Action `json:"action"`
		Description string `json:"description"`
	}

	Dispatcher struct {
		bindings []Binding

		mu       sync.RWMutex
		handlers map[Action]func()
	}
)

// Default is the dashboard's binding set.
func Default() []Binding {
	return []Binding{
		{Key: "k", Modifier: true, Action: ActionFocusSearch, Description: "Focus search"},
		{Key: "n", Modifier: true, Action: ActionOpenAddForm, Description: "Add resource"},
		{Key: keyEscape, Action: ActionCloseModal, Description: "Close modal"},
	}
}

// Editable reports whether typing into the target produces text.
func (t Target) Editable() bool {
	switch strings.ToUpper(t.Tag) {
	case "INPUT", "TEXTAREA":
		return true
	}
	return t.ContentEditable
}

func (b Binding) Matches(e KeyEvent) bool {
	if !strings.EqualFold(e.Key, b.Key) {
		return false
	}
	if b.Modifier != (e.Ctrl || e.Meta) {
		return false
	}
	return b.Shift == e.Shift
}

// Label renders the binding for platform, e.g. "⌘ + K".
func (b Binding) Label(platform string) string {
	key := b.Key
	if len(key) == 1 {
		key = strings.ToUpper(key)
	}
	parts := make([]string, 0, 3)
	if b.Modifier {
		parts = append(parts, ModifierLabel(platform))
	}
	if b.Shift {
		parts = append(parts, "Shift")
	}
	return strings.Join(append(parts, key), " + ")
}

// ModifierLabel is "⌘" on mac platforms and "Ctrl" everywhere else.
func ModifierLabel(platform string) string {
	if strings.Contains(strings.ToLower(platform), "mac") {
		return "⌘"
	}
	return "Ctrl"
}

func NewDispatcher(bindings []Binding) *Dispatcher {
	return &Dispatcher{
		bindings: bindings,
		handlers: make(map[Action]func()),
	}
}

func (d *Dispatcher) Bindings() []Binding {
	return append([]Binding(nil), d.bindings...)
}

// On sets the handler for action, replacing any previous one.
func (d *Dispatcher) On(action Action, fn func()) {
	d.mu.Lock()
	d.handlers[action] = fn
	d.mu.Unlock()
}

// Dispatch runs the first binding that matches e. The bool result tells the
// caller to suppress the key's default behaviour. While an editable element
// has focus only Escape is considered.
func (d *Dispatcher) Dispatch(e KeyEvent) (Action, bool) {
	if e.Target.Editable() && e.Key != keyEscape {
		return "", false
	}

	for _, b := range d.bindings {
		if !b.Matches(e) {
			continue
		}
		d.mu.RLock()
		fn := d.handlers[b.Action]
		d.mu.RUnlock()
		if fn != nil {
			fn()
		}
		return b.Action, true
	}
	return "", false
}
