package dav

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{key: "report.txt", want: "text/plain"},
		{key: "docs/photo.JPG", want: "image/jpeg"},
		{key: "archive.tar", want: "application/x-tar"},
		{key: "noext", want: "application/octet-stream"},
		{key: "weird.xyz", want: "application/octet-stream"},
		{key: "", want: "application/octet-stream"},
	}

	for _, tc := range tests {
		require.Equalf(t, tc.want, resolveContentType(tc.key), "content type for %q", tc.key)
	}
}
