package ui_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"davgate/internal/ui"
)

func render(t *testing.T, path string, parentHref string, entries []ui.Entry) string {
	t.Helper()

	var sb strings.Builder
	require.NoError(t, ui.ListingPage(path, parentHref, entries).Render(context.Background(), &sb), "rendering listing")
	return sb.String()
}

func TestListingPage(t *testing.T) {
	t.Parallel()

	page := render(t, "/docs/", "/", []ui.Entry{
		{Name: "a.txt", Href: "/docs/a.txt", Size: 2048, LastModified: "2026-03-14 09:00"},
		{Name: "pics", Href: "/docs/pics/", IsDir: true},
	})

	require.Contains(t, page, "Index of /docs/", "title")
	require.Contains(t, page, `<a href="/">`, "parent link")
	require.Contains(t, page, `<a href="/docs/a.txt">a.txt</a>`, "file row")
	require.Contains(t, page, "2.0 KiB", "humanized size")
	require.Contains(t, page, `<a href="/docs/pics/">pics/</a>`, "collection row with separator")
	require.Contains(t, page, "&mdash;", "collections show no size")
}

func TestListingPageEscapesNames(t *testing.T) {
	t.Parallel()

	page := render(t, "/", "", []ui.Entry{
		{Name: "<script>.txt", Href: "/%3Cscript%3E.txt", Size: 1},
	})

	require.NotContains(t, page, "<script>.txt", "raw markup must not survive")
	require.Contains(t, page, "&lt;script&gt;.txt", "escaped name shown")
}

func TestListingPageEmpty(t *testing.T) {
	t.Parallel()

	page := render(t, "/empty/", "/", nil)
	require.Contains(t, page, "This collection is empty.", "empty state")
}
