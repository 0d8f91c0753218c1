package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetenvInt(t *testing.T) {
	t.Setenv("CLIP_CONCURRENCY", "3")
	assert.Equal(t, 3, getenvInt("CLIP_CONCURRENCY", 0))

	t.Setenv("CLIP_POLL_MS", "")
	assert.Equal(t, 5000, getenvInt("CLIP_POLL_MS", 5000))

	t.Setenv("CLIP_POLL_MS", "not-a-number")
	assert.Equal(t, 5000, getenvInt("CLIP_POLL_MS", 5000))
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")
	assert.Equal(t, "gemini-1.5-flash", getenvDefault("GEMINI_MODEL", "gemini-1.5-flash"))

	t.Setenv("GEMINI_MODEL", "gemini-1.5-pro")
	assert.Equal(t, "gemini-1.5-pro", getenvDefault("GEMINI_MODEL", "gemini-1.5-flash"))
}
