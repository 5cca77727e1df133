package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Descriptor holds static metadata about a registered tool. Descriptors
// are immutable once registered; re-registering a name replaces the whole
// entry.
type Descriptor struct {
	// Name is the full "category:tool" name.
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	ProviderIDs     []string               `json:"provider_ids"`
	InputSchema     map[string]interface{} `json:"input_schema"`
	SafetyTags      []string               `json:"safety_tags"`
	ConcurrencySafe bool                   `json:"concurrency_safe"`
	Interactive     bool                   `json:"interactive"`
}

// Category returns the category part of the tool name
func (d Descriptor) Category() string {
	return Category(d.Name)
}

// Category extracts the category from a "category:tool" name. Names
// without a separator fall into the "default" category.
func Category(toolName string) string {
	if idx := strings.Index(toolName, ":"); idx > 0 {
		return toolName[:idx]
	}
	return "default"
}

type entry struct {
	desc   Descriptor
	schema *gojsonschema.Schema
}

// Catalog is the read-mostly registry of tool descriptors
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{
		tools: make(map[string]*entry),
	}
}

// Register adds a tool descriptor, compiling its input schema. An existing
// descriptor with the same name is replaced wholesale.
func (c *Catalog) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if !strings.Contains(desc.Name, ":") {
		return fmt.Errorf("tool name %q is not category:tool", desc.Name)
	}
	if !desc.Interactive && len(desc.ProviderIDs) == 0 {
		return fmt.Errorf("tool %q has no providers", desc.Name)
	}

	var schema *gojsonschema.Schema
	if desc.InputSchema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for %q: %w", desc.Name, err)
		}
		schema = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, replaced := c.tools[desc.Name]
	c.tools[desc.Name] = &entry{desc: desc, schema: schema}

	log.Info().
		Str("tool", desc.Name).
		Strs("providers", desc.ProviderIDs).
		Bool("replaced", replaced).
		Msg("Tool registered")

	return nil
}

// Deregister removes a tool descriptor
func (c *Catalog) Deregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tools, name)

	log.Info().Str("tool", name).Msg("Tool deregistered")
}

// Get returns a tool descriptor by name
func (c *Catalog) Get(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Schema returns the compiled input schema for a tool, or nil if the tool
// declared no contract
func (c *Catalog) Schema(name string) *gojsonschema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.tools[name]; ok {
		return e.schema
	}
	return nil
}

// List returns all registered tool names, sorted
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ListByCategory returns descriptors in the given category
func (c *Catalog) ListByCategory(category string) []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var descs []Descriptor
	for _, e := range c.tools {
		if e.desc.Category() == category {
			descs = append(descs, e.desc)
		}
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })

	return descs
}

// SearchByTag returns descriptors carrying the given safety tag
func (c *Catalog) SearchByTag(tag string) []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var descs []Descriptor
	for _, e := range c.tools {
		for _, t := range e.desc.SafetyTags {
			if t == tag {
				descs = append(descs, e.desc)
				break
			}
		}
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })

	return descs
}

// Count returns the number of registered tools
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.tools)
}
