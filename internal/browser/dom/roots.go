// internal/browser/dom/roots.go
package dom

import "go.uber.org/zap"

// SearchRoots lists every tree a search must cover: the top document, then each reachable
// frame document breadth first, then every shadow root reachable from any of those, nested
// roots included. Frames that cannot be entered are skipped and logged. Each root appears once.
func SearchRoots(top *Node, logger *zap.Logger) []*Node {
	if top == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := map[*Node]bool{top: true}
	docs := []*Node{top}
	for i := 0; i < len(docs); i++ {
		walkComposed(docs[i], func(n *Node) {
			if n.Tag != "iframe" && n.Tag != "frame" {
				return
			}
			if n.CrossOrigin {
				logger.Debug("Skipping inaccessible frame.", zap.String("src", n.AttrOr("src")), zap.Int64("node_id", n.ID))
				return
			}
			if cd := n.ContentDocument; cd != nil && !seen[cd] {
				seen[cd] = true
				docs = append(docs, cd)
			}
		})
	}

	roots := append([]*Node(nil), docs...)
	for i := 0; i < len(roots); i++ {
		roots[i].Walk(func(n *Node) bool {
			for _, sr := range n.ShadowRoots {
				if !seen[sr] {
					seen[sr] = true
					roots = append(roots, sr)
				}
			}
			return true
		})
	}
	return roots
}

// walkComposed visits the light tree of root and the shadow trees hanging off it, without
// entering frame documents.
func walkComposed(root *Node, fn func(*Node)) {
	root.Walk(func(n *Node) bool {
		fn(n)
		for _, sr := range n.ShadowRoots {
			walkComposed(sr, fn)
		}
		return true
	})
}
