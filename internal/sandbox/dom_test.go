package sandbox

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestDOM(t *testing.T, markup string) *DOM {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return ParseDOM(doc)
}

func TestDOMQuerySelectors(t *testing.T) {
	dom := parseTestDOM(t, `<main id="app"><ul class="items wide"><li>a</li><li data-x="y">b</li></ul></main><li>c</li>`)

	tests := []struct {
		selector string
		want     []string
	}{
		{"#app li", []string{"a", "b"}},
		{"[data-x]", []string{"b"}},
		{"ul > li:first-child", []string{"a"}},
		{".items.wide li", []string{"a", "b"}},
		{"li", []string{"a", "b", "c"}},
		{"section", nil},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			elems, err := dom.Query(tt.selector)
			require.NoError(t, err)
			var got []string
			for _, elem := range elems {
				got = append(got, elem.Text())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDOMQueryRejectsInvalidSelector(t *testing.T) {
	dom := parseTestDOM(t, `<p>x</p>`)

	_, err := dom.Query("p[")
	assert.Error(t, err)
	_, err = dom.Query("  ")
	assert.Error(t, err)
}

func TestDOMLookups(t *testing.T) {
	dom := parseTestDOM(t, `<div id="a" class="x y"></div><div class="x"></div><P>p</P>`)

	require.NotNil(t, dom.ByID("a"))
	assert.Nil(t, dom.ByID("missing"))
	assert.Len(t, dom.ByClass("x"), 2)
	assert.Len(t, dom.ByClass("x y"), 1)
	assert.Len(t, dom.ByTag("p"), 1)
	assert.Len(t, dom.ByTag("DIV"), 2)
}

func TestElementMutations(t *testing.T) {
	dom := parseTestDOM(t, `<div id="box" title="t">old<script>ignored()</script></div><span id="s">x</span>`)
	box := dom.ByID("box")
	require.NotNil(t, box)

	assert.Equal(t, "old", box.Text())
	title, ok := box.GetAttribute("title")
	assert.True(t, ok)
	assert.Equal(t, "t", title)
	_, ok = box.GetAttribute("missing")
	assert.False(t, ok)

	box.SetHTML(`<b class="k">bold</b>`)
	assert.Equal(t, "bold", box.Text())
	assert.Equal(t, `<b class="k">bold</b>`, box.HTML())
	bold, err := dom.Query("#box > b.k")
	require.NoError(t, err)
	assert.Len(t, bold, 1)

	box.SetText("<i>literal</i>")
	assert.Equal(t, "<i>literal</i>", box.Text())
	italic, err := dom.Query("#box i")
	require.NoError(t, err)
	assert.Empty(t, italic)

	box.SetAttribute("id", "renamed")
	assert.Equal(t, "#renamed", box.Selector())
	assert.Nil(t, dom.ByID("box"))

	dom.ByID("s").Remove()
	assert.Nil(t, dom.ByID("s"))
	assert.Empty(t, dom.ByTag("span"))
}
