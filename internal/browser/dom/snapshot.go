// internal/browser/dom/snapshot.go
package dom

// Snapshot is one capture of the page: the top-level document plus an index by node ID.
type Snapshot struct {
	Root *Node
	byID map[int64]*Node
}

// NewSnapshot indexes a finished tree and assigns document order. The walk enters shadow
// roots before light children and frame documents after them, which matches the order the
// host renders them in.
func NewSnapshot(root *Node) *Snapshot {
	s := &Snapshot{Root: root, byID: make(map[int64]*Node)}
	order := 0
	var visit func(*Node)
	visit = func(n *Node) {
		n.Order = order
		order++
		if n.ID != 0 {
			s.byID[n.ID] = n
		}
		for _, sr := range n.ShadowRoots {
			visit(sr)
		}
		for _, c := range n.Children {
			visit(c)
		}
		if n.ContentDocument != nil {
			visit(n.ContentDocument)
		}
	}
	if root != nil {
		visit(root)
	}
	return s
}

// Node looks up a node by backend ID.
func (s *Snapshot) Node(id int64) (*Node, bool) {
	if s == nil {
		return nil, false
	}
	n, ok := s.byID[id]
	return n, ok
}

// Connected reports whether a node with this ID is still part of the page.
func (s *Snapshot) Connected(id int64) bool {
	_, ok := s.Node(id)
	return ok
}

// Len is the number of indexed nodes.
func (s *Snapshot) Len() int { return len(s.byID) }
