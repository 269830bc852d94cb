// File: slab/slab.go
// License: Apache-2.0
//
// Generational slot table mapping opaque tokens to live values.

// Package slab provides a dense slot table with token-based lookup. Tokens
// carry a generation counter: removing a value bumps its slot's generation,
// so a stale token from a previous occupant fails lookup instead of
// aliasing the slot's next occupant.
package slab

import "github.com/ipckit/jsonipc/api"

type entry[T any] struct {
	val  T
	gen  uint32
	live bool
}

// Slab maps api.Token to values with slot reuse. The zero value is not
// usable; construct with New. Not safe for concurrent use.
type Slab[T any] struct {
	entries []entry[T]
	free    []uint32 // slot positions eligible for reuse, LIFO
	offset  uint32   // token index of slot position 0
	count   int
}

// New returns a slab whose first token index is offset, with capacity slots
// reserved up front. The table grows past the reservation on demand without
// invalidating issued tokens.
func New[T any](offset uint32, capacity int) *Slab[T] {
	return &Slab[T]{
		entries: make([]entry[T], 0, capacity),
		offset:  offset,
	}
}

// Insert stores v and returns its token. Freed slots are reused before the
// table grows.
func (s *Slab[T]) Insert(v T) api.Token {
	s.count++
	if n := len(s.free); n > 0 {
		pos := s.free[n-1]
		s.free = s.free[:n-1]
		e := &s.entries[pos]
		e.val = v
		e.live = true
		return api.Token{Index: s.offset + pos, Gen: e.gen}
	}
	pos := uint32(len(s.entries))
	s.entries = append(s.entries, entry[T]{val: v, live: true})
	return api.Token{Index: s.offset + pos, Gen: 0}
}

// Get returns the value for tok. The second result is false when tok is
// out of range, freed, or from an earlier occupant of its slot.
func (s *Slab[T]) Get(tok api.Token) (T, bool) {
	if e := s.lookup(tok); e != nil {
		return e.val, true
	}
	var zero T
	return zero, false
}

// Remove frees tok's slot and returns the removed value. The slot's
// generation is bumped so tok (and any copy of it) misses from now on,
// while the slot itself becomes eligible for reuse.
func (s *Slab[T]) Remove(tok api.Token) (T, bool) {
	var zero T
	e := s.lookup(tok)
	if e == nil {
		return zero, false
	}
	v := e.val
	e.val = zero
	e.live = false
	e.gen++
	s.free = append(s.free, tok.Index-s.offset)
	s.count--
	return v, true
}

// Len reports the number of live entries.
func (s *Slab[T]) Len() int { return s.count }

// Range calls fn for every live entry until fn returns false.
func (s *Slab[T]) Range(fn func(tok api.Token, v T) bool) {
	for pos := range s.entries {
		e := &s.entries[pos]
		if !e.live {
			continue
		}
		if !fn(api.Token{Index: s.offset + uint32(pos), Gen: e.gen}, e.val) {
			return
		}
	}
}

func (s *Slab[T]) lookup(tok api.Token) *entry[T] {
	if tok.Index < s.offset {
		return nil
	}
	pos := tok.Index - s.offset
	if pos >= uint32(len(s.entries)) {
		return nil
	}
	e := &s.entries[pos]
	if !e.live || e.gen != tok.Gen {
		return nil
	}
	return e
}
