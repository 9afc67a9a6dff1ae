package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"bob+tag@sub.example.org",
		"x@a.bc",
	}
	for _, addr := range valid {
		assert.True(t, Valid(addr), "addr %q", addr)
	}

	invalid := []string{
		"",
		"alice",
		"alice@",
		"@example.com",
		"alice@localhost",
		"Alice <alice@example.com>",
		"alice@example.com extra",
	}
	for _, addr := range invalid {
		assert.False(t, Valid(addr), "addr %q", addr)
	}
}
