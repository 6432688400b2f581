package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Deploy Guide", "deploy-guide"},
		{"punctuation collapses", "What?! A — Guide...", "what-a-guide"},
		{"already safe", "notes", "notes"},
		{"digits kept", "Q3 2025 Plan", "q3-2025-plan"},
		{"unicode letters kept", "Café Notes", "café-notes"},
		{"leading trailing stripped", "  --Deploy--  ", "deploy"},
		{"empty becomes untitled", "???", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.title))
		})
	}
}

func TestSlugifyStable(t *testing.T) {
	assert.Equal(t, Slugify("Deploy Guide"), Slugify("Deploy Guide"))
}

func TestFactSlug(t *testing.T) {
	slug := FactSlug("deploy-guide", "decision", "use blue-green")
	assert.Contains(t, slug, "deploy-guide-decision-")
	// Digest suffix is 8 hex chars
	assert.Len(t, slug, len("deploy-guide-decision-")+8)

	// Same inputs, same slug; different content, different slug
	assert.Equal(t, slug, FactSlug("deploy-guide", "decision", "use blue-green"))
	assert.NotEqual(t, slug, FactSlug("deploy-guide", "decision", "use canary"))
}
