// Package replytree assembles flat reply rows into per-post trees and
// addresses nodes either by ID or by positional path.
package replytree

import (
	"errors"
	"sort"
	"time"
)

// DefaultMaxDepth is the deepest level a reply may sit at. Top-level replies are depth 1.
const DefaultMaxDepth = 5

var (
	// ErrDepthExceeded is returned when a new reply would sit below the maximum depth.
	ErrDepthExceeded = errors.New("reply depth limit exceeded")
	// ErrPathOutOfRange is returned when a path index does not name an existing child.
	ErrPathOutOfRange = errors.New("reply path out of range")
	// ErrOrphan is returned by Build when a row references a parent that is not in the set.
	ErrOrphan = errors.New("reply parent missing")
	// ErrNotFound is returned when an anchor ID is not part of the forest.
	ErrNotFound = errors.New("reply not found")
)

// Row is the flat storage shape a tree is built from.
type Row struct {
	ID          uint
	PostID      uint
	ParentID    *uint
	UserID      uint
	Content     string
	Attachments []string
	CreatedAt   time.Time
}

// Node is a reply with its ordered children.
type Node struct {
	ID          uint      `json:"id"`
	PostID      uint      `json:"post_id"`
	ParentID    *uint     `json:"parent_id"`
	UserID      uint      `json:"user_id"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	Depth       int       `json:"depth"`
	CreatedAt   time.Time `json:"created_at"`
	Children    []*Node   `json:"replies"`

	parent *Node
}

// Forest is the ordered set of top-level replies of one post.
type Forest struct {
	Roots []*Node
	index map[uint]*Node
}

// Prune splits rows into those whose parent chain ends at a top-level reply and
// orphans that cannot be placed: missing parents, parent cycles and their descendants.
// Build accepts the kept rows without ErrOrphan.
func Prune(rows []Row) (kept, orphans []Row) {
	byID := make(map[uint]Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	attached := make(map[uint]bool, len(rows))
	var placed func(id uint, hops int) bool
	placed = func(id uint, hops int) bool {
		if ok, done := attached[id]; done {
			return ok
		}
		r, ok := byID[id]
		if !ok || hops > len(rows) {
			return false
		}
		ok = r.ParentID == nil || placed(*r.ParentID, hops+1)
		attached[id] = ok
		return ok
	}
	for _, r := range rows {
		if placed(r.ID, 0) {
			kept = append(kept, r)
		} else {
			orphans = append(orphans, r)
		}
	}
	return kept, orphans
}

// Build assembles rows into a forest. Siblings are ordered by creation time, then ID.
func Build(rows []Row) (*Forest, error) {
	f := &Forest{index: make(map[uint]*Node, len(rows))}
	for _, r := range rows {
		atts := r.Attachments
		if atts == nil {
			atts = []string{}
		}
		f.index[r.ID] = &Node{
			ID:          r.ID,
			PostID:      r.PostID,
			ParentID:    r.ParentID,
			UserID:      r.UserID,
			Content:     r.Content,
			Attachments: atts,
			CreatedAt:   r.CreatedAt,
			Children:    []*Node{},
		}
	}
	for _, r := range rows {
		n := f.index[r.ID]
		if r.ParentID == nil {
			f.Roots = append(f.Roots, n)
			continue
		}
		p, ok := f.index[*r.ParentID]
		if !ok {
			return nil, ErrOrphan
		}
		n.parent = p
		p.Children = append(p.Children, n)
	}
	sortNodes(f.Roots)
	for _, n := range f.index {
		sortNodes(n.Children)
	}
	for _, r := range f.Roots {
		setDepth(r, 1)
	}
	return f, nil
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}

func setDepth(n *Node, d int) {
	n.Depth = d
	for _, c := range n.Children {
		setDepth(c, d+1)
	}
}

// Find returns the node with the given ID.
func (f *Forest) Find(id uint) (*Node, bool) {
	n, ok := f.index[id]
	return n, ok
}

// Len is the number of nodes in the forest, nested ones included.
func (f *Forest) Len() int { return len(f.index) }

// IDs returns every ID held by the flat index.
func (f *Forest) IDs() []uint {
	ids := make([]uint, 0, len(f.index))
	for id := range f.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Walk visits every node in pre-order, roots first in display order.
func (f *Forest) Walk(fn func(*Node)) {
	for _, r := range f.Roots {
		walk(r, fn)
	}
}

func walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

// ResolvePath anchors at id and follows p.
func (f *Forest) ResolvePath(id uint, p Path) (*Node, error) {
	anchor, ok := f.Find(id)
	if !ok {
		return nil, ErrNotFound
	}
	return Resolve(anchor, p)
}

// Subtree returns n's ID followed by all descendant IDs in pre-order.
func Subtree(n *Node) []uint {
	var ids []uint
	walk(n, func(x *Node) { ids = append(ids, x.ID) })
	return ids
}

// CountAll counts nodes including every nested child.
func CountAll(nodes []*Node) int {
	total := 0
	for _, n := range nodes {
		walk(n, func(*Node) { total++ })
	}
	return total
}

// CheckDepth reports whether a child may be attached under a node at parentDepth.
func CheckDepth(parentDepth, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if parentDepth+1 > maxDepth {
		return ErrDepthExceeded
	}
	return nil
}

// Page slices top-level nodes only; children always travel with their root.
// page is 1-based. The second return value is the number of pages (at least 1).
func Page(roots []*Node, page, size int) ([]*Node, int) {
	if size <= 0 {
		size = 10
	}
	if page <= 0 {
		page = 1
	}
	pages := (len(roots) + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * size
	if start >= len(roots) {
		return []*Node{}, pages
	}
	end := start + size
	if end > len(roots) {
		end = len(roots)
	}
	return roots[start:end], pages
}

// Reverse returns the roots in newest-first order without touching children.
func Reverse(roots []*Node) []*Node {
	out := make([]*Node, len(roots))
	for i, n := range roots {
		out[len(roots)-1-i] = n
	}
	return out
}
