package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "query stripped", in: "https://example.com/post?utm_source=x", want: "https://example.com/post"},
		{name: "fragment stripped", in: "https://example.com/post#section", want: "https://example.com/post"},
		{name: "host lowercased", in: "https://EXAMPLE.com/Path", want: "https://example.com/Path"},
		{name: "www dropped", in: "https://www.example.com/a", want: "https://example.com/a"},
		{name: "trailing slash dropped", in: "https://example.com/a/", want: "https://example.com/a"},
		{name: "root path", in: "https://example.com/", want: "https://example.com"},
		{name: "default port dropped", in: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "custom port kept", in: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{name: "scheme lowercased", in: "HTTPS://example.com/a", want: "https://example.com/a"},
		{name: "not http", in: "ftp://example.com/a", want: ""},
		{name: "relative", in: "/just/a/path", want: ""},
		{name: "empty", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestExtract(t *testing.T) {
	text := "Great writeup (https://blog.example.com/scaling). Also see https://arxiv.org/abs/2401.00001, thanks!"
	got := Extract(text)
	assert.Equal(t, []string{
		"https://blog.example.com/scaling",
		"https://arxiv.org/abs/2401.00001",
	}, got)
}

func TestExtract_NoURLs(t *testing.T) {
	assert.Empty(t, Extract("nothing to see here"))
}

func TestNormalizeAll(t *testing.T) {
	got := NormalizeAll([]string{
		"https://example.com/a?x=1",
		"https://www.example.com/a",
		"not a url",
		"https://example.com/b",
	})
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got)
}
