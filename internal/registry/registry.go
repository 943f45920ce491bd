// Package registry holds the process-wide, read-mostly tables mapping
// language codes to engine resources and keyword names to keyword models.
// A Registry is built once at startup and never mutated afterwards, so it is
// freely shared by all connections without synchronisation.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by lookups for unknown languages or keyword names.
var ErrNotFound = errors.New("registry: not found")

// Keyword is a single wake-word model available for arming.
type Keyword struct {
	// Language is the model's language code (e.g., "en", "fr").
	Language string

	// Name is the keyword identifier advertised to clients (e.g., "alexa").
	Name string

	// ModelPath is the keyword model file (.ppn).
	ModelPath string
}

// Registry is the immutable resource table. Construct with New or Discover.
type Registry struct {
	libs     map[string]string  // language -> engine resource path
	keywords map[string]Keyword // keyword name -> keyword
	names    []string           // sorted keyword names
}

// New builds a Registry from resolved tables. It fails if any keyword's
// language has no matching engine resource, since such a keyword could never
// be loaded.
func New(libs map[string]string, keywords map[string]Keyword) (*Registry, error) {
	var errs []error
	for name, kw := range keywords {
		if _, ok := libs[kw.Language]; !ok {
			errs = append(errs, fmt.Errorf("registry: keyword %q needs language %q but no engine resource provides it", name, kw.Language))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	r := &Registry{
		libs:     make(map[string]string, len(libs)),
		keywords: make(map[string]Keyword, len(keywords)),
		names:    make([]string, 0, len(keywords)),
	}
	for lang, path := range libs {
		r.libs[lang] = path
	}
	for name, kw := range keywords {
		r.keywords[name] = kw
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// EngineResource returns the engine resource path for a language.
func (r *Registry) EngineResource(language string) (string, error) {
	path, ok := r.libs[language]
	if !ok {
		return "", fmt.Errorf("engine resource for language %q: %w", language, ErrNotFound)
	}
	return path, nil
}

// Keyword returns the keyword record for a name.
func (r *Registry) Keyword(name string) (Keyword, error) {
	kw, ok := r.keywords[name]
	if !ok {
		return Keyword{}, fmt.Errorf("keyword %q: %w", name, ErrNotFound)
	}
	return kw, nil
}

// Keywords returns every configured keyword, ordered by name.
func (r *Registry) Keywords() []Keyword {
	out := make([]Keyword, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.keywords[name])
	}
	return out
}

// Len returns the number of configured keywords.
func (r *Registry) Len() int {
	return len(r.keywords)
}
