package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestCleanPrefersParagraphs(t *testing.T) {
	t.Parallel()

	raw := `<html><head><style>.x{}</style></head><body>
<header>Site header</header>
<nav><a href="/">Home</a></nav>
<div>Loose text outside paragraphs</div>
<p>  We are hiring a <b>Go</b> engineer. </p>
<p></p>
<p>Apply via <a href="/apply">this link</a> today.</p>
<script>track()</script>
<footer>Footer</footer>
</body></html>`

	got := Clean(raw, 1000)
	require.Equal(t, "We are hiring a Go engineer.\n\nApply via today.", got)
}

func TestCleanFallsBackToDocumentText(t *testing.T) {
	t.Parallel()

	raw := "<div>Senior Engineer</div>\n\n\n<div>  Melbourne   VIC </div><ul><li>Go</li><li>Postgres</li></ul>"
	got := Clean(raw, 1000)
	require.NotContains(t, got, "<")
	require.Contains(t, got, "Senior Engineer")
	require.Contains(t, got, "Melbourne VIC")
	require.NotContains(t, got, "\n\n\n")
}

func TestCleanTruncates(t *testing.T) {
	t.Parallel()

	raw := "<p>" + strings.Repeat("é", 50) + "</p>"
	got := Clean(raw, 10)
	require.Equal(t, 10, utf8.RuneCountInString(got))
}

func TestCleanDefaultLength(t *testing.T) {
	t.Parallel()

	got := Clean("<p>"+strings.Repeat("a", DefaultMaxLength+10)+"</p>", 0)
	require.Len(t, got, DefaultMaxLength)
}

func TestCleanBoundedForMalformedInput(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<",
		"<<<>>>",
		"<p>unclosed <b>bold <i>italic",
		"</p></p></div>",
		"<script>never closed",
		"\x00\xff\xfe binary \x01",
		strings.Repeat("<div>", 500) + "deep" + strings.Repeat("</span>", 3),
		"<p>" + strings.Repeat("x ", 5000) + "</p>",
	}
	for _, in := range inputs {
		for _, n := range []int{1, 5, 64, 4096} {
			var got string
			require.NotPanics(t, func() { got = Clean(in, n) })
			require.LessOrEqual(t, utf8.RuneCountInString(got), n, "input %q", in)
		}
	}
}

func TestCleanIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"<p>First paragraph.</p><p>Second\n\n\n  paragraph.</p>",
		"<div>Line one</div>\n\n\n\n<div>Line two</div>",
		"Already clean text.\n\nWith two blocks.",
		"<p>" + strings.Repeat("word ", 40) + "</p>",
	}
	for _, in := range inputs {
		once := Clean(in, 120)
		require.Equal(t, once, Clean(once, 120), "input %q", in)
	}
}

func TestCleanDecodesEntitiesOnce(t *testing.T) {
	t.Parallel()

	once := Clean("<p>Use &lt;b&gt;bold&lt;/b&gt; for titles.</p>", 200)
	require.Equal(t, "Use <b>bold</b> for titles.", once)
	require.Equal(t, "Use bold for titles.", Clean(once, 200))

	once = Clean("<p>Escape &lt;script&gt; tags in templates.</p>", 200)
	require.Equal(t, "Escape <script> tags in templates.", once)
	require.NotContains(t, Clean(once, 200), "tags", "decoded text is plain text, not HTML")
}

func TestNormalizer(t *testing.T) {
	t.Parallel()

	n := Normalizer{MaxLength: 4}
	require.Equal(t, "abcd", n.Clean("<p>abcdef</p>"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "日本", Truncate("日本語", 2))
}
