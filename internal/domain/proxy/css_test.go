package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteCSS(t *testing.T) {
	page := origin(t, "https://example.com/styles/main.css")

	tests := []struct {
		name string
		css  string
		want string
	}{
		{
			name: "unquoted",
			css:  `body { background: url(/bg.png); }`,
			want: `body { background: url('/proxy/s1/https%3A%2F%2Fexample.com%2Fbg.png'); }`,
		},
		{
			name: "single quoted",
			css:  `body { background: url('/bg.png'); }`,
			want: `body { background: url('/proxy/s1/https%3A%2F%2Fexample.com%2Fbg.png'); }`,
		},
		{
			name: "double quoted",
			css:  `body { background: url("https://cdn.com/bg.png"); }`,
			want: `body { background: url('/proxy/s1/https%3A%2F%2Fcdn.com%2Fbg.png'); }`,
		},
		{
			name: "data url untouched",
			css:  `body { background: url(data:image/png;base64,AAAA); }`,
			want: `body { background: url('data:image/png;base64,AAAA'); }`,
		},
		{
			name: "multiple references",
			css:  `a { background: url(/a.png); } b { background: url(/b.png); }`,
			want: `a { background: url('/proxy/s1/https%3A%2F%2Fexample.com%2Fa.png'); } b { background: url('/proxy/s1/https%3A%2F%2Fexample.com%2Fb.png'); }`,
		},
		{
			name: "no urls",
			css:  `body { color: red; }`,
			want: `body { color: red; }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteCSS(tt.css, page, "s1"))
		})
	}
}
