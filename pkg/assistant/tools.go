package assistant

import (
	"github.com/pocketsight/pocketsight/pkg/vision"
)

// Tool is a client tool the agent can invoke. Every tool here captures a
// still from the camera and runs a vision analysis with its intent.
type Tool struct {
	// Name is the identifier the agent platform uses in tool calls.
	Name string

	// Description explains the tool to the agent.
	Description string

	// Intent selects the vision prompt used on the captured image.
	Intent vision.Intent
}

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry from the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name]; dup {
			continue
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DefaultTools returns the standard tool set.
func DefaultTools() *Registry {
	return NewRegistry(
		Tool{
			Name:        "identify_cash",
			Description: "Identify banknotes held in front of the camera and state each denomination and the total value.",
			Intent:      vision.IntentCash,
		},
		Tool{
			Name:        "identify_item",
			Description: "Describe the item held in front of the camera, including brands, text, and size.",
			Intent:      vision.IntentItem,
		},
		Tool{
			Name:        "read_packaging",
			Description: "Read the text on packaging, labels, or medication boxes in front of the camera, calling out allergens and warnings.",
			Intent:      vision.IntentPackaging,
		},
	)
}
