package ir

import (
	"errors"
	"fmt"
	"slices"
)

// RootTagType is the reserved type of the tag that wraps a session's input.
const RootTagType = "ROOT_TAG"

// TagID identifies a tag within one Arena.
// Ids are dense indexes assigned in allocation order.
type TagID int

// NoTag marks an absent tag, e.g. an unbound optional rule input.
const NoTag TagID = -1

// ErrUnknownTag is returned when a TagID does not belong to the Arena.
var ErrUnknownTag = errors.New("unknown tag")

// Tag is an immutable typed fact produced during a diagnosis session.
//
// Parents reference the tags the fact was derived from. The root tag has
// no parents; every other tag has at least one.
type Tag struct {
	ID      TagID   `json:"id"`
	Type    string  `json:"type"`
	Value   any     `json:"value"`
	Parents []TagID `json:"parents,omitempty"`
}

// IsRoot reports whether the tag wraps the session input.
func (t Tag) IsRoot() bool {
	return t.Type == RootTagType && len(t.Parents) == 0
}

// Arena owns every tag of one session and their lineage edges.
//
// Tags are only ever appended. Because a new tag may only reference
// parents that already exist, the lineage graph is acyclic by
// construction.
//
// Thread-safety: an Arena belongs to exactly one session and is not
// safe for concurrent use.
type Arena struct {
	tags     []Tag
	children [][]TagID
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		tags:     make([]Tag, 0, 32),
		children: make([][]TagID, 0, 32),
	}
}

// Root allocates the root tag wrapping the session input.
// The root must be the first tag of the arena.
func (a *Arena) Root(value any) (Tag, error) {
	if len(a.tags) != 0 {
		return Tag{}, fmt.Errorf("root tag must be allocated first (arena holds %d tags)", len(a.tags))
	}
	return a.append(RootTagType, value, nil), nil
}

// New allocates a derived tag of the given type.
// At least one parent is required and every parent must already exist.
func (a *Arena) New(tagType string, value any, parents ...TagID) (Tag, error) {
	if tagType == "" {
		return Tag{}, fmt.Errorf("tag type is required")
	}
	if tagType == RootTagType {
		return Tag{}, fmt.Errorf("tag type %q is reserved for the session input", RootTagType)
	}
	if len(parents) == 0 {
		return Tag{}, fmt.Errorf("tag of type %q needs at least one parent", tagType)
	}
	for _, p := range parents {
		if !a.contains(p) {
			return Tag{}, fmt.Errorf("parent %d of %q: %w", p, tagType, ErrUnknownTag)
		}
	}
	return a.append(tagType, value, slices.Clone(parents)), nil
}

func (a *Arena) append(tagType string, value any, parents []TagID) Tag {
	t := Tag{
		ID:      TagID(len(a.tags)),
		Type:    tagType,
		Value:   value,
		Parents: parents,
	}
	a.tags = append(a.tags, t)
	a.children = append(a.children, nil)
	for _, p := range parents {
		a.children[p] = append(a.children[p], t.ID)
	}
	return cloneTag(t)
}

func (a *Arena) contains(id TagID) bool {
	return id >= 0 && int(id) < len(a.tags)
}

// Get returns the tag with the given id.
func (a *Arena) Get(id TagID) (Tag, bool) {
	if !a.contains(id) {
		return Tag{}, false
	}
	return cloneTag(a.tags[id]), true
}

// MustGet is like Get but panics for unknown ids.
// Use only with ids handed out by this arena.
func (a *Arena) MustGet(id TagID) Tag {
	t, ok := a.Get(id)
	if !ok {
		panic(fmt.Sprintf("tag %d: %v", id, ErrUnknownTag))
	}
	return t
}

// Len returns the number of allocated tags.
func (a *Arena) Len() int {
	return len(a.tags)
}

// Tags returns every tag in allocation order.
func (a *Arena) Tags() []Tag {
	out := make([]Tag, len(a.tags))
	for i, t := range a.tags {
		out[i] = cloneTag(t)
	}
	return out
}

// Children returns the ids of tags directly derived from id.
func (a *Arena) Children(id TagID) []TagID {
	if !a.contains(id) {
		return nil
	}
	return slices.Clone(a.children[id])
}

// Ancestors returns every tag reachable through parent edges from id,
// nearest first. Ties are broken by parent declaration order, so the
// result is deterministic. The tag itself is not included.
func (a *Arena) Ancestors(id TagID) []TagID {
	if !a.contains(id) {
		return nil
	}

	var out []TagID
	seen := map[TagID]bool{id: true}
	frontier := a.tags[id].Parents
	for len(frontier) > 0 {
		var next []TagID
		for _, p := range frontier {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			next = append(next, a.tags[p].Parents...)
		}
		frontier = next
	}
	return out
}

// IsAncestor reports whether ancestor is reachable from descendant
// through parent edges.
func (a *Arena) IsAncestor(ancestor, descendant TagID) bool {
	if !a.contains(ancestor) || !a.contains(descendant) || ancestor >= descendant {
		// Parents are always allocated before their children.
		return false
	}
	return slices.Contains(a.Ancestors(descendant), ancestor)
}

// CommonAncestor returns the nearest tag that is an ancestor-or-self of
// both a and b. ok is false if either id is unknown.
func (a *Arena) CommonAncestor(x, y TagID) (TagID, bool) {
	if !a.contains(x) || !a.contains(y) {
		return NoTag, false
	}
	chainY := map[TagID]bool{y: true}
	for _, id := range a.Ancestors(y) {
		chainY[id] = true
	}
	if chainY[x] {
		return x, true
	}
	for _, id := range a.Ancestors(x) {
		if chainY[id] {
			return id, true
		}
	}
	return NoTag, false
}

// Lineage returns the tag followed by its ancestors, nearest first.
func (a *Arena) Lineage(id TagID) []Tag {
	t, ok := a.Get(id)
	if !ok {
		return nil
	}
	out := []Tag{t}
	for _, anc := range a.Ancestors(id) {
		out = append(out, cloneTag(a.tags[anc]))
	}
	return out
}

func cloneTag(t Tag) Tag {
	t.Parents = slices.Clone(t.Parents)
	return t
}
