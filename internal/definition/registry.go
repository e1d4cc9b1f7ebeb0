package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/quotecfg/model"
)

// snapshot is an immutable collection of templates indexed by id.
type snapshot struct {
	templates map[string]model.Template
	ids       []string
	checksum  string
}

// Registry is a read-optimized, thread-safe store of loaded templates.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given templates.
func NewRegistry(tmpls []model.Template) *Registry {
	r := &Registry{}
	r.Replace(tmpls)
	return r
}

// Replace atomically swaps the registry contents. When two templates share an
// id the later one wins, so directory templates can override the builtin ones.
func (r *Registry) Replace(tmpls []model.Template) {
	s := &snapshot{templates: make(map[string]model.Template, len(tmpls))}

	for _, t := range tmpls {
		s.templates[t.ID] = t
	}

	checksumParts := make([]string, 0, len(s.templates))
	for id, t := range s.templates {
		s.ids = append(s.ids, id)
		checksumParts = append(checksumParts, t.Checksum)
	}
	sort.Strings(s.ids)
	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns a deep copy of the template with the given id.
func (r *Registry) Get(id string) (model.Template, bool) {
	t, ok := r.current().templates[id]
	if !ok {
		return model.Template{}, false
	}
	t.CalculatorConfig = t.DeepCopy()
	return t, true
}

// All returns template summaries sorted by id.
func (r *Registry) All() []model.TemplateSummary {
	s := r.current()
	out := make([]model.TemplateSummary, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.templates[id].Summary())
	}
	return out
}

// Len returns the number of loaded templates.
func (r *Registry) Len() int {
	return len(r.current().templates)
}

// Checksum returns the combined checksum of all loaded templates.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
