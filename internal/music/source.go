package music

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// Source is a content provider that queries can be resolved against.
type Source struct {
	Name         string
	FancyName    string
	SearchPrefix string
	Hosts        []string

	auth *AuthPoller
}

func NewSource(name, fancyName, searchPrefix string, hosts ...string) *Source {
	return &Source{
		Name:         name,
		FancyName:    fancyName,
		SearchPrefix: searchPrefix,
		Hosts:        hosts,
	}
}

// WithAuth gates the source behind a device-authorization handshake.
func (s *Source) WithAuth(p *AuthPoller) *Source {
	s.auth = p
	return s
}

func (s *Source) Auth() *AuthPoller {
	return s.auth
}

func (s *Source) RequiresAuth() bool {
	return s.auth != nil
}

func (s *Source) Available() bool {
	return s.auth == nil || s.auth.Authorized()
}

// Target returns what should be handed to the loader for query.
func (s *Source) Target(query string, isSearch bool) string {
	if !isSearch {
		return query
	}
	return s.SearchPrefix + query
}

// Serves reports whether uri points at one of the source's hosts.
func (s *Source) Serves(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range s.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (s *Source) String() string {
	return s.Name
}

// SourceRegistry holds the ordered set of sources and the process-wide
// default. The default is shared by every guild.
type SourceRegistry struct {
	sources []*Source
	def     atomic.Int32
}

func NewSourceRegistry(defaultName string, sources ...*Source) (*SourceRegistry, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources registered")
	}

	r := &SourceRegistry{sources: sources}
	idx := r.indexOfName(defaultName)
	if idx < 0 {
		return nil, fmt.Errorf("unknown default source %q", defaultName)
	}
	r.def.Store(int32(idx))
	return r, nil
}

func (r *SourceRegistry) Sources() []*Source {
	out := make([]*Source, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *SourceRegistry) Lookup(name string) (*Source, bool) {
	idx := r.indexOfName(name)
	if idx < 0 {
		return nil, false
	}
	return r.sources[idx], true
}

func (r *SourceRegistry) Default() *Source {
	return r.sources[r.def.Load()]
}

// ForURI returns the source whose hosts serve uri, if any.
func (r *SourceRegistry) ForURI(uri string) (*Source, bool) {
	for _, s := range r.sources {
		if s.Serves(uri) {
			return s, true
		}
	}
	return nil, false
}

// Next returns the first available source after from in registry order,
// wrapping around and never returning from itself. It returns nil when no
// other source is available.
func (r *SourceRegistry) Next(from *Source) *Source {
	idx := r.nextIndex(r.indexOf(from))
	if idx < 0 {
		return nil
	}
	return r.sources[idx]
}

// Rotate advances the default past from, but only while from is still the
// default. It returns the new default and whether a rotation happened.
func (r *SourceRegistry) Rotate(from *Source) (*Source, bool) {
	cur := r.indexOf(from)
	if cur < 0 {
		return r.Default(), false
	}

	next := r.nextIndex(cur)
	if next < 0 {
		return r.Default(), false
	}

	if !r.def.CompareAndSwap(int32(cur), int32(next)) {
		return r.Default(), false
	}
	return r.sources[next], true
}

func (r *SourceRegistry) nextIndex(from int) int {
	n := len(r.sources)
	for step := 1; step < n; step++ {
		idx := (from + step) % n
		if idx < 0 {
			idx += n
		}
		if idx != from && r.sources[idx].Available() {
			return idx
		}
	}
	return -1
}

func (r *SourceRegistry) indexOf(s *Source) int {
	for i, src := range r.sources {
		if src == s {
			return i
		}
	}
	return -1
}

func (r *SourceRegistry) indexOfName(name string) int {
	for i, src := range r.sources {
		if strings.EqualFold(src.Name, name) {
			return i
		}
	}
	return -1
}
