package entity

import (
	"strings"

	"github.com/netbricks/netbricks/engine/definition"
	"github.com/pkg/errors"
)

// ActorTemplate is the built-in root template used when a descriptor names no templates
const ActorTemplate = "Actor"

var (
	// ErrInconsistentHierarchy is returned when no C3 linearization of templates exists
	ErrInconsistentHierarchy = errors.New("inconsistent template hierarchy")
	// ErrUnknownTemplate is returned when a template cannot be loaded
	ErrUnknownTemplate = errors.New("unknown template")
)

// C3Merge merges linearizations into one order in which every sequence keeps its relative order
//
// A head is taken from the first sequence whose head appears in no other sequence's tail.
func C3Merge(seqs [][]string) ([]string, error) {
	work := make([][]string, 0, len(seqs))
	for _, seq := range seqs {
		if len(seq) > 0 {
			work = append(work, append([]string(nil), seq...))
		}
	}

	var res []string
	for len(work) > 0 {
		candidate := ""
		for _, seq := range work {
			head := seq[0]
			if !inAnyTail(head, work) {
				candidate = head
				break
			}
		}
		if candidate == "" {
			return nil, errors.Wrapf(ErrInconsistentHierarchy, "cannot merge %s", formatSeqs(work))
		}

		res = append(res, candidate)
		nonEmpty := work[:0]
		for _, seq := range work {
			if seq[0] == candidate {
				seq = seq[1:]
			}
			if len(seq) > 0 {
				nonEmpty = append(nonEmpty, seq)
			}
		}
		work = nonEmpty
	}
	return res, nil
}

func inAnyTail(name string, seqs [][]string) bool {
	for _, seq := range seqs {
		for _, s := range seq[1:] {
			if s == name {
				return true
			}
		}
	}
	return false
}

func formatSeqs(seqs [][]string) string {
	parts := make([]string, len(seqs))
	for i, seq := range seqs {
		parts[i] = "[" + strings.Join(seq, " ") + "]"
	}
	return strings.Join(parts, " ")
}

// TemplateSource provides templates by name
type TemplateSource interface {
	LoadTemplate(name string) (*definition.Template, error)
}

// TemplateSet loads templates and caches their linearizations
type TemplateSet struct {
	source         TemplateSource
	templates      map[string]*definition.Template
	linearizations map[string][]string
	visiting       map[string]bool
}

// NewTemplateSet creates a template set reading from source
func NewTemplateSet(source TemplateSource) *TemplateSet {
	ts := &TemplateSet{
		source:         source,
		templates:      map[string]*definition.Template{},
		linearizations: map[string][]string{},
		visiting:       map[string]bool{},
	}
	ts.templates[ActorTemplate] = &definition.Template{Name: ActorTemplate}
	return ts
}

// Add adds a template, replacing the cached one with the same name
func (ts *TemplateSet) Add(tmpl *definition.Template) {
	ts.templates[tmpl.Name] = tmpl
	ts.linearizations = map[string][]string{}
}

// Template returns the template with the name
func (ts *TemplateSet) Template(name string) (*definition.Template, error) {
	if tmpl, ok := ts.templates[name]; ok {
		return tmpl, nil
	}
	if ts.source == nil {
		return nil, errors.Wrapf(ErrUnknownTemplate, "%s", name)
	}
	tmpl, err := ts.source.LoadTemplate(name)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownTemplate, "%s: %v", name, err)
	}
	ts.templates[name] = tmpl
	return tmpl, nil
}

// Linearize returns the method resolution order of the template, starting with itself
func (ts *TemplateSet) Linearize(name string) ([]string, error) {
	if mro, ok := ts.linearizations[name]; ok {
		return mro, nil
	}
	if ts.visiting[name] {
		return nil, errors.Wrapf(ErrInconsistentHierarchy, "template %s inherits from itself", name)
	}
	ts.visiting[name] = true
	defer delete(ts.visiting, name)

	tmpl, err := ts.Template(name)
	if err != nil {
		return nil, err
	}
	bases, err := ts.MRO(tmpl.Bases)
	if err != nil {
		return nil, errors.WithMessagef(err, "template %s", name)
	}
	mro := append([]string{name}, bases...)
	ts.linearizations[name] = mro
	return mro, nil
}

// MRO returns the order a type deriving from bases would resolve through, excluding the type itself
func (ts *TemplateSet) MRO(bases []string) ([]string, error) {
	seqs := make([][]string, 0, len(bases)+1)
	for _, base := range bases {
		mro, err := ts.Linearize(base)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, mro)
	}
	seqs = append(seqs, bases)
	return C3Merge(seqs)
}
