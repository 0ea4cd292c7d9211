// Package domain holds the value types shared by every navguard layer.
// Nothing in here performs I/O.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownList is returned when a list key is neither blocklist nor whitelist.
	ErrUnknownList = errors.New("unknown list")
	// ErrIndexOutOfRange is returned by List.Without for an invalid position.
	ErrIndexOutOfRange = errors.New("list index out of range")
)

// ListKey names one of the two persisted, user-editable lists.
type ListKey string

const (
	Blocklist ListKey = "blocklist"
	Whitelist ListKey = "whitelist"
)

// ListKeys returns every persisted list key in a stable order.
func ListKeys() []ListKey { return []ListKey{Blocklist, Whitelist} }

// ParseListKey converts user input into a ListKey (case-insensitive).
func ParseListKey(s string) (ListKey, error) {
	switch ListKey(strings.ToLower(strings.TrimSpace(s))) {
	case Blocklist:
		return Blocklist, nil
	case Whitelist:
		return Whitelist, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownList, s)
	}
}

// List is an ordered sequence of patterns (domains, path fragments or keywords).
// Order is insertion order. Uniqueness is enforced by With, never on read.
type List []string

// Contains reports exact (case-sensitive) membership, the same test used to
// suppress duplicate inserts.
func (l List) Contains(site string) bool {
	for _, s := range l {
		if s == site {
			return true
		}
	}
	return false
}

// With returns a copy of l with site appended unless already present.
// changed is false when site was a duplicate.
func (l List) With(site string) (out List, changed bool) {
	if l.Contains(site) {
		return l.Clone(), false
	}
	out = make(List, 0, len(l)+1)
	out = append(out, l...)
	return append(out, site), true
}

// Without returns a copy of l with the entry at index removed.
func (l List) Without(index int) (List, error) {
	if index < 0 || index >= len(l) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, index, len(l))
	}
	out := make(List, 0, len(l)-1)
	out = append(out, l[:index]...)
	return append(out, l[index+1:]...), nil
}

// Union returns l followed by every entry of other not already present,
// keeping first-seen order. Entries of l are never dropped.
func (l List) Union(other []string) List {
	seen := make(map[string]struct{}, len(l)+len(other))
	out := make(List, 0, len(l)+len(other))
	for _, src := range [][]string{l, other} {
		for _, s := range src {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Clone returns an independent copy. A nil list clones to an empty, non-nil list.
func (l List) Clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}
