package scrape

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_StripsBlocks(t *testing.T) {
	html := `<html><head><title>Acme</title><style>body{color:red}</style>
<script>var x = 1 < 2;</script></head>
<body><svg><path d="M0 0"/></svg><noscript>Enable JavaScript</noscript>
<!-- hidden comment --><input type="text" value="secret">
<textarea>draft</textarea><h1>Welcome</h1><p>We build great products.</p></body></html>`

	text := ExtractText(html)
	assert.Contains(t, text, "Welcome")
	assert.Contains(t, text, "great products")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Enable JavaScript")
	assert.NotContains(t, text, "hidden comment")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "draft")
}

func TestExtractText_DecodesEntities(t *testing.T) {
	text := ExtractText(`<p>Smith&nbsp;&amp;&nbsp;Sons &quot;est.&quot; &#39;95</p>`)
	assert.Contains(t, text, `Smith & Sons "est." '95`)

	// Deeply nested encodings decode all the way down in one call.
	assert.Equal(t, "&", ExtractText("&amp;amp;amp;amp;amp;"))
}

func TestExtractText_Idempotent(t *testing.T) {
	inputs := []string{
		`<div><p>Plain &amp; simple</p></div>`,
		`<p>a &lt;b&gt; c</p>`,
		`&amp;lt;sneaky&amp;gt;`,
		`<p>&amp;amp;amp;amp;nbsp;</p>`,
		strings.Repeat("&amp;", 8) + "quot;deep&amp;quot;",
		`<script>x</script>text<style>y</style>`,
		"already plain text",
	}
	for _, in := range inputs {
		once := ExtractText(in)
		twice := ExtractText(once)
		assert.Equal(t, once, twice, "not idempotent for %q", in)
	}
}

func TestExtractText_NoAngleBrackets(t *testing.T) {
	inputs := []string{
		`<p>1 &lt; 2 &gt; 0</p>`,
		`<div>broken < tag soup`,
		`&lt;div&gt;escaped markup&lt;/div&gt;`,
	}
	for _, in := range inputs {
		out := ExtractText(in)
		assert.False(t, strings.ContainsAny(out, "<>"), "output %q contains angle brackets", out)
	}
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	text := ExtractText("<p>a</p>   <p>b\t\tc</p>")
	assert.NotContains(t, text, "  ")
	assert.NotContains(t, text, "\t")
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Acme Corp", ExtractTitle(`<html><head><title> Acme Corp </title></head></html>`))
	assert.Equal(t, "First", ExtractTitle(`<title>First</title><title>Second</title>`))
	assert.Equal(t, "", ExtractTitle(`<html><body>no title</body></html>`))
}

func TestExtractLinks_FiltersAndResolves(t *testing.T) {
	base, err := url.Parse("https://x.com")
	require.NoError(t, err)

	html := `<a href="#top">Top</a>
<a href="mailto:a@b.com">Mail</a>
<a href="tel:+15551234">Call</a>
<a href="javascript:void(0)">JS</a>
<a href="/about">About</a>`

	links := ExtractLinks(html, base)
	assert.Equal(t, []string{"https://x.com/about"}, links)
}

func TestExtractLinks_DedupesAndSkipsInvalid(t *testing.T) {
	base, _ := url.Parse("https://x.com/sub/")
	html := `<a href="/about">A</a><a href="/about">B</a>
<a href="page">Rel</a><a href="https://other.com/x">Ext</a>
<a href="http://%zz">Bad</a>`

	links := ExtractLinks(html, base)
	assert.Equal(t, []string{
		"https://x.com/about",
		"https://x.com/sub/page",
		"https://other.com/x",
	}, links)
}

func TestNeedsRender_ShortText(t *testing.T) {
	// Length rule applies independent of other heuristics.
	assert.True(t, NeedsRender("<html><body><p>tiny</p></body></html>", "tiny", 500))

	long := strings.Repeat("words and more words ", 50)
	assert.False(t, NeedsRender("<html><body>"+long+"</body></html>", long, 500))
}

func TestNeedsRender_SPAShell(t *testing.T) {
	long := strings.Repeat("x", 600)
	for _, shell := range []string{
		`<div id="root"></div>`,
		`<div id="app"> </div>`,
		`<div id="__next"></div>`,
	} {
		assert.True(t, NeedsRender(shell, long, 500), "shell %q", shell)
	}
	assert.False(t, NeedsRender(`<div id="root"><p>hydrated</p></div>`, long, 500))
}

func TestNeedsRender_Markers(t *testing.T) {
	long := strings.Repeat("x", 600)
	assert.True(t, NeedsRender(`<body><div>Loading...</div></body>`, long, 500))
	assert.True(t, NeedsRender(`<noscript>Please enable JavaScript to view this site.</noscript>`, long, 500))
	assert.False(t, NeedsRender(`<noscript><img src="pixel.gif"></noscript>`, long, 500))
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got)

	got, err = NormalizeURL("http://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a", got)

	_, err = NormalizeURL("   ")
	assert.Error(t, err)
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://www.Example.com:8443/path"))
	assert.Equal(t, "sub.example.com", Domain("https://sub.example.com/"))
	assert.Equal(t, "", Domain("not a url"))
}
