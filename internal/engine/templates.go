package engine

import (
	"sync"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// TemplateRegistry holds immutable workflow templates keyed by id.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*schema.WorkflowTemplate
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*schema.WorkflowTemplate),
	}
}

// Register stores a template by id. Returns DUPLICATE_TEMPLATE when the id
// is already present; templates are never mutated after registration.
func (r *TemplateRegistry) Register(tpl *schema.WorkflowTemplate) error {
	if tpl == nil || tpl.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "template id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[tpl.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateTemplate,
			"template %q already registered", tpl.ID)
	}
	r.templates[tpl.ID] = tpl
	return nil
}

// Get returns the template with the given id.
func (r *TemplateRegistry) Get(id string) (*schema.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeTemplateNotFound, "template %q not found", id)
	}
	return tpl, nil
}

// List returns all registered templates in unspecified order.
func (r *TemplateRegistry) List() []*schema.WorkflowTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*schema.WorkflowTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		out = append(out, tpl)
	}
	return out
}
