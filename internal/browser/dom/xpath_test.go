package dom

import (
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xpathFixture = `
	<html>
	<body>
		<div id="header">
			<h1>Welcome</h1>
		</div>
		<div class="content">
			<p>P1</p><p>P2</p>
			<ul>
				<li>Item 1</li>
				<li>Item 2</li>
				<li id="special">Item 3</li>
			</ul>
		</div>
		<div class="content"><p>P3</p></div>
		<div class="host"><template shadowrootmode="open"><button>b</button></template></div>
	</body>
	</html>
	`

func TestXPath(t *testing.T) {
	tree, err := ParseHTMLTree(xpathFixture)
	require.NoError(t, err)
	s := tree.Snapshot()

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Element with ID", "//div[@id='header']", `//*[@id='header']`},
		{"Child of ID element", "//h1", `//*[@id='header']/h1[1]`},
		{"Specific index", "(//p)[2]", "/html[1]/body[1]/div[2]/p[2]"},
		{"Ambiguous classes", "(//div[@class='content'])[2]/p", "/html[1]/body[1]/div[3]/p[1]"},
		{"List item", "//ul/li[2]", "/html[1]/body[1]/div[2]/ul[1]/li[2]"},
		{"List item with ID", "//li[@id='special']", `//*[@id='special']`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := htmlquery.FindOne(tree.Doc, tt.target)
			require.NotNil(t, h, "fixture has no %s", tt.target)
			n, ok := s.Node(tree.ID(h))
			require.True(t, ok)
			assert.Equal(t, tt.want, XPath(n))
		})
	}

	t.Run("Shadow boundary", func(t *testing.T) {
		host := htmlquery.FindOne(tree.Doc, "//div[@class='host']")
		n, ok := s.Node(tree.ID(host))
		require.True(t, ok)
		btn := n.ShadowRoots[0].ElementChildren()[0]
		assert.Equal(t, "/html[1]/body[1]/div[4]/#shadow-root/button[1]", XPath(btn))
	})

	assert.Equal(t, "", XPath(nil))
	assert.Equal(t, "/", XPath(s.Root))
}
