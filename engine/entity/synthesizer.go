package entity

import (
	"sort"
	"sync"

	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/pkg/errors"
)

// DescriptorSource provides descriptors and templates by name
type DescriptorSource interface {
	TemplateSource
	Load(name string) (*definition.Descriptor, error)
}

// Synthesizer turns descriptors into entity types and caches them by type name
//
// It is safe for concurrent use.
type Synthesizer struct {
	source    DescriptorSource
	lock      sync.RWMutex
	templates *TemplateSet
	types     map[string]*EntityType
	failures  map[string]error
}

// NewSynthesizer creates a synthesizer loading descriptors from source, which may be nil
func NewSynthesizer(source DescriptorSource) *Synthesizer {
	return &Synthesizer{
		source:    source,
		templates: NewTemplateSet(source),
		types:     map[string]*EntityType{},
		failures:  map[string]error{},
	}
}

// AddTemplate registers a template that is not loaded from the source
func (s *Synthesizer) AddTemplate(tmpl *definition.Template) {
	s.lock.Lock()
	s.templates.Add(tmpl)
	s.lock.Unlock()
}

// Synthesize creates the entity type for desc and caches it, replacing a cached type with the same name
func (s *Synthesizer) Synthesize(desc *definition.Descriptor) (*EntityType, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	et, err := s.synthesize(desc)
	if err != nil {
		return nil, err
	}
	s.types[desc.Name] = et
	delete(s.failures, desc.Name)
	return et, nil
}

// Get returns the cached entity type with the name, loading its descriptor on first use
//
// Load failures are cached too, so asking for a host object name without a descriptor costs one lookup.
func (s *Synthesizer) Get(name string) (*EntityType, error) {
	s.lock.RLock()
	et, err := s.types[name], s.failures[name]
	s.lock.RUnlock()
	if et != nil || err != nil {
		return et, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if et := s.types[name]; et != nil {
		return et, nil
	}
	if err := s.failures[name]; err != nil {
		return nil, err
	}

	et, err = s.load(name)
	if err != nil {
		s.failures[name] = err
		return nil, err
	}
	s.types[name] = et
	return et, nil
}

// Cached returns the cached entity type with the name, or nil
func (s *Synthesizer) Cached(name string) *EntityType {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.types[name]
}

// Invalidate drops the cached type and load failure with the name
func (s *Synthesizer) Invalidate(name string) {
	s.lock.Lock()
	delete(s.types, name)
	delete(s.failures, name)
	s.lock.Unlock()
}

// Types returns the names of the cached entity types, sorted
func (s *Synthesizer) Types() []string {
	s.lock.RLock()
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	s.lock.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Synthesizer) load(name string) (*EntityType, error) {
	if s.source == nil {
		return nil, errors.Wrapf(definition.ErrDescriptorNotFound, "%s", name)
	}
	desc, err := s.source.Load(name)
	if err != nil {
		return nil, err
	}
	return s.synthesize(desc)
}

func (s *Synthesizer) synthesize(desc *definition.Descriptor) (*EntityType, error) {
	bases := desc.Templates
	if len(bases) == 0 {
		bases = []string{ActorTemplate}
	}
	mro, err := s.templates.MRO(bases)
	if err != nil {
		return nil, errors.WithMessagef(err, "synthesize %s", desc.Name)
	}

	et := newEntityType(desc, mro)
	for i := len(mro) - 1; i >= 0; i-- {
		tmpl, err := s.templates.Template(mro[i])
		if err != nil {
			return nil, err
		}
		et.merge(tmpl.Attributes, tmpl.RPCs, tmpl.Defaults)
	}
	et.merge(desc.Attributes, desc.RPCs, desc.Defaults)
	if err := et.finish(); err != nil {
		return nil, err
	}

	gwlog.Infof("Synthesized %s: mro=%v attributes=%v rpcs=%v", et, et.mro, et.AttributeNames(), et.RPCNames())
	return et, nil
}
