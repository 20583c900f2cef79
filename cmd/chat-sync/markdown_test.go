package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello there", "hello there"},
		{"emphasis", "this is **very** _nice_", "this is very nice"},
		{"inline code", "run `make test` first", "run make test first"},
		{"link", "see [docs](https://example.com)", "see docs (https://example.com)"},
		{"autolink", "<https://example.com>", "https://example.com"},
		{"paragraphs", "one\n\ntwo", "one\ntwo"},
		{"list", "- a\n- b", "• a\n• b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plainText(tt.in))
		})
	}
}
