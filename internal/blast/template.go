package blast

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/codesan-git/blasting-be/internal/ids"
)

// ErrTemplateNotFound is returned for unknown template ids.
var ErrTemplateNotFound = errors.New("blast: template not found")

// Template is a reusable message body with {{variable}} placeholders.
// Subject is only meaningful for the email channel.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// TemplateRegistry resolves and manages templates.
type TemplateRegistry interface {
	Find(ctx context.Context, id string) (*Template, error)
	Upsert(ctx context.Context, tpl *Template) error
	List(ctx context.Context) ([]*Template, error)
}

// MemoryTemplates is an in-process registry, seedable at startup.
type MemoryTemplates struct {
	mu   sync.RWMutex
	byID map[string]*Template
}

// NewMemoryTemplates constructs a registry preloaded with the given templates.
func NewMemoryTemplates(seed ...*Template) *MemoryTemplates {
	r := &MemoryTemplates{byID: make(map[string]*Template, len(seed))}
	for _, tpl := range seed {
		if tpl.ID == "" {
			tpl.ID = ids.New()
		}
		cp := *tpl
		r.byID[tpl.ID] = &cp
	}
	return r
}

func (r *MemoryTemplates) Find(ctx context.Context, id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.byID[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *tpl
	return &cp, nil
}

func (r *MemoryTemplates) Upsert(ctx context.Context, tpl *Template) error {
	if strings.TrimSpace(tpl.Body) == "" {
		return errors.New("template body is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl.ID == "" {
		tpl.ID = ids.New()
	}
	cp := *tpl
	r.byID[tpl.ID] = &cp
	return nil
}

func (r *MemoryTemplates) List(ctx context.Context) ([]*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.byID))
	for _, tpl := range r.byID {
		cp := *tpl
		out = append(out, &cp)
	}
	return out, nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{key}} placeholders from vars. Unknown placeholders
// are left untouched so missing data is visible in the output.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}
