package template

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the currently loaded template libraries, keyed by source URI.
// Updates replace whole libraries atomically; a failed reload leaves the
// previous library in place, so a broken document on disk degrades nothing.
type Store struct {
	mu        sync.RWMutex
	libraries map[string]*Library
}

// NewStore creates an empty library store.
func NewStore() *Store {
	return &Store{libraries: make(map[string]*Library)}
}

// Update replaces the library loaded from lib's source URI.
func (s *Store) Update(lib *Library) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existing := s.libraries[lib.URI()]; existing {
		log.Info().Str("library", lib.URI()).Msg("template library: updated")
	} else {
		log.Info().Str("library", lib.URI()).Msg("template library: loaded")
	}

	s.libraries[lib.URI()] = lib
}

// Libraries returns a snapshot of the loaded libraries.
func (s *Store) Libraries() []*Library {
	s.mu.RLock()
	defer s.mu.RUnlock()

	libs := make([]*Library, 0, len(s.libraries))
	for _, lib := range s.libraries {
		libs = append(libs, lib)
	}
	return libs
}

// HandlerFor resolves a qualified tag reference (prefix:local, as written
// in gadget markup) against the loaded libraries. The prefix is matched
// case-insensitively against each library's declared prefix.
func (s *Store) HandlerFor(prefix, local string) (TagHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lib := range s.libraries {
		libPrefix, libURI := lib.Namespace()
		if !strings.EqualFold(libPrefix, prefix) {
			continue
		}
		if h, ok := lib.Registry().Handler(TagName{URI: libURI, Local: local}); ok {
			return h, true
		}
	}
	return nil, false
}
