package engine

import "github.com/roach88/rootcause/internal/ir"

// worklist is the FIFO of tags whose consequences have not been
// evaluated yet.
//
// FIFO order keeps propagation breadth-first: every tag of one
// derivation depth is matched before the tags it produces. Together with
// declaration-order rule evaluation this makes runs reproducible.
//
// Not safe for concurrent use; only Session.Call touches it.
type worklist struct {
	ids []ir.TagID
}

func newWorklist() *worklist {
	return &worklist{ids: make([]ir.TagID, 0, 32)}
}

// Push appends tags to the back.
func (w *worklist) Push(ids ...ir.TagID) {
	w.ids = append(w.ids, ids...)
}

// Pop removes and returns the front tag.
func (w *worklist) Pop() (ir.TagID, bool) {
	if len(w.ids) == 0 {
		return ir.NoTag, false
	}
	id := w.ids[0]
	if len(w.ids) == 1 {
		w.ids = w.ids[:0]
	} else {
		w.ids = w.ids[1:]
	}
	return id, true
}

// Len returns the number of pending tags.
func (w *worklist) Len() int {
	return len(w.ids)
}
