// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"
)

// XPath renders a short, human-readable locator for n, used when logging which node a
// resolver settled on. An element with an id anchors the path. Shadow boundaries appear as
// "#shadow-root" steps and frame boundaries as "#document" steps under the frame element.
func XPath(n *Node) string {
	if n == nil {
		return ""
	}

	var path []string
	for cur := n; cur != nil; {
		switch cur.Type {
		case ElementNode:
			if id := cur.AttrOr("id"); id != "" {
				path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
				return joinXPath(path, true)
			}
			path = append(path, fmt.Sprintf("%s[%d]", cur.Tag, typeIndex(cur)))
			cur = cur.Parent
		case ShadowRootNode:
			path = append(path, "#shadow-root")
			cur = cur.Host
		case DocumentNode:
			if cur.Frame == nil {
				return joinXPath(path, false)
			}
			path = append(path, "#document")
			cur = cur.Frame
		default:
			cur = cur.Parent
		}
	}
	return joinXPath(path, false)
}

// typeIndex is the 1-based position of n among its same-tag siblings.
func typeIndex(n *Node) int {
	if n.Parent == nil {
		return 1
	}
	index := 1
	for _, c := range n.Parent.Children {
		if c == n {
			break
		}
		if c.Type == ElementNode && c.Tag == n.Tag {
			index++
		}
	}
	return index
}

func joinXPath(path []string, anchored bool) string {
	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	out := strings.Join(path, "/")
	if !anchored {
		out = "/" + out
	}
	return out
}
