// internal/browser/dom/cdp.go
package dom

import (
	"strings"

	"github.com/chromedp/cdproto/domsnapshot"
)

// SnapshotStyles are the computed properties requested from DOMSnapshot.captureSnapshot,
// in the order FromCDP reads them back.
var SnapshotStyles = []string{"display", "visibility", "opacity"}

const (
	cdpElement  = 1
	cdpText     = 3
	cdpDocument = 9
	cdpFragment = 11
)

// FromCDP assembles the flattened documents of a DOMSnapshot capture into one tree rooted
// at the first document. Frames whose document is absent from the capture were out of
// reach and are marked CrossOrigin.
func FromCDP(docs []*domsnapshot.DocumentSnapshot, strs []string) *Snapshot {
	if len(docs) == 0 {
		return NewSnapshot(nil)
	}
	str := func(i domsnapshot.StringIndex) string {
		if i < 0 || int(i) >= len(strs) {
			return ""
		}
		return strs[i]
	}

	roots := make([]*Node, len(docs))
	type link struct {
		frame *Node
		doc   int
	}
	var links []link

	for di, d := range docs {
		if d == nil || d.Nodes == nil {
			continue
		}
		nt := d.Nodes
		nodes := make([]*Node, len(nt.NodeType))

		shadow := map[int64]bool{}
		if nt.ShadowRootType != nil {
			for _, idx := range nt.ShadowRootType.Index {
				shadow[idx] = true
			}
		}

		for i, typ := range nt.NodeType {
			var n *Node
			switch typ {
			case cdpElement:
				name := strings.ToLower(str(nt.NodeName[i]))
				if strings.HasPrefix(name, "::") {
					continue
				}
				n = &Node{Type: ElementNode, Tag: name, Attrs: map[string]string{}}
				if i < len(nt.Attributes) {
					attrs := nt.Attributes[i]
					for k := 0; k+1 < len(attrs); k += 2 {
						n.Attrs[strings.ToLower(str(domsnapshot.StringIndex(attrs[k])))] = str(domsnapshot.StringIndex(attrs[k+1]))
					}
				}
			case cdpText:
				n = &Node{Type: TextNode, Value: str(nt.NodeValue[i])}
			case cdpDocument:
				n = &Node{Type: DocumentNode, URL: str(d.DocumentURL)}
			case cdpFragment:
				if !shadow[int64(i)] {
					continue
				}
				n = &Node{Type: ShadowRootNode}
			default:
				continue
			}
			if i < len(nt.BackendNodeID) {
				n.ID = int64(nt.BackendNodeID[i])
			}
			nodes[i] = n

			if i >= len(nt.ParentIndex) || nt.ParentIndex[i] < 0 {
				continue
			}
			parent := nodes[nt.ParentIndex[i]]
			if parent == nil {
				continue
			}
			if n.Type == ShadowRootNode {
				n.Host = parent
				parent.ShadowRoots = append(parent.ShadowRoots, n)
				continue
			}
			n.Parent = parent
			parent.Children = append(parent.Children, n)
		}

		if d.Layout != nil {
			for li, ni := range d.Layout.NodeIndex {
				if ni < 0 || int(ni) >= len(nodes) || nodes[ni] == nil {
					continue
				}
				n := nodes[ni]
				if li < len(d.Layout.Bounds) && len(d.Layout.Bounds[li]) >= 4 {
					b := d.Layout.Bounds[li]
					n.Bounds = Rect{X: b[0], Y: b[1], Width: b[2], Height: b[3]}
				}
				if li < len(d.Layout.Styles) {
					props := d.Layout.Styles[li]
					if len(props) > 0 {
						n.Style.Display = str(domsnapshot.StringIndex(props[0]))
					}
					if len(props) > 1 {
						n.Style.Visibility = str(domsnapshot.StringIndex(props[1]))
					}
					if len(props) > 2 {
						n.Style.Opacity = str(domsnapshot.StringIndex(props[2]))
					}
				}
			}
		}

		if nt.ContentDocumentIndex != nil {
			cdi := nt.ContentDocumentIndex
			for k, idx := range cdi.Index {
				if k < len(cdi.Value) && int(idx) < len(nodes) && nodes[idx] != nil {
					links = append(links, link{frame: nodes[idx], doc: int(cdi.Value[k])})
				}
			}
		}
		if len(nodes) > 0 {
			roots[di] = nodes[0]
		}
	}

	for _, l := range links {
		if l.doc <= 0 || l.doc >= len(roots) || roots[l.doc] == nil || roots[l.doc].Frame != nil {
			continue
		}
		l.frame.ContentDocument = roots[l.doc]
		roots[l.doc].Frame = l.frame
	}
	for _, r := range roots {
		if r == nil {
			continue
		}
		markUnreachableFrames(r)
	}
	return NewSnapshot(roots[0])
}

func markUnreachableFrames(root *Node) {
	walkComposed(root, func(n *Node) {
		if (n.Tag == "iframe" || n.Tag == "frame") && n.ContentDocument == nil {
			n.CrossOrigin = true
		}
	})
}
