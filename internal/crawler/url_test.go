package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase host and scheme", in: "HTTPS://Example.COM/Docs", want: "https://example.com/Docs"},
		{name: "default https port", in: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "default http port", in: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "non default port kept", in: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{name: "fragment stripped", in: "https://example.com/a#section", want: "https://example.com/a"},
		{name: "empty path", in: "https://example.com", want: "https://example.com/"},
		{name: "dot segments", in: "https://example.com/a/./b/../c", want: "https://example.com/a/c"},
		{name: "query order kept", in: "https://example.com/a?b=2&a=1", want: "https://example.com/a?b=2&a=1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in, false)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLKeepFragment(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("https://example.com/a#frag", true)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a#frag", got)
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("/relative/path", false)
	require.Error(t, err)

	_, err = NormalizeURL("://bad", false)
	require.Error(t, err)
}

func TestNormalizeURLIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.com:443/a/../b?x=1#y",
		"http://example.com",
		"https://docs.example.com/guide/./intro",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in, false)
		require.NoError(t, err)
		twice, err := NormalizeURL(once, false)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestEnsureScheme(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com", EnsureScheme("example.com"))
	require.Equal(t, "http://example.com", EnsureScheme("http://example.com"))
}

func TestClassifyURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, FetchDirect, ClassifyURL("https://example.com/files/report.pdf"))
	require.Equal(t, FetchDirect, ClassifyURL("https://example.com/files/REPORT.PDF"))
	require.Equal(t, FetchDirect, ClassifyURL("https://example.com/report.pdf?download=1"))
	require.Equal(t, FetchRendered, ClassifyURL("https://example.com/report.pdf.html"))
	require.Equal(t, FetchRendered, ClassifyURL("https://example.com/"))
}

func TestLastPathSegment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "report.pdf", LastPathSegment("https://example.com/files/report.pdf"))
	require.Equal(t, "", LastPathSegment("https://example.com/"))
	require.Equal(t, "plain", LastPathSegment("plain"))
}
