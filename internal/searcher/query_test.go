package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"single term", "deploy", `"deploy"*`},
		{"multi word implicit AND", "deploy guide", `"deploy"* AND "guide"*`},
		{"explicit AND preserved", "deploy AND guide", `"deploy" AND "guide"`},
		{"explicit OR preserved", "alpha OR beta", `"alpha" OR "beta"`},
		{"grouping preserved", "(alpha OR beta) NOT gamma", `( "alpha" OR "beta" ) NOT "gamma"`},
		{"path pattern no wildcard", "ops/deploy-guide.md", `"ops/deploy-guide.md"`},
		{"embedded quote escaped", `say "hi"`, `"say"* AND """hi"""*`},
		{"hyphenated term quoted", "blue-green", `"blue-green"*`},
		{"whitespace only", "   ", `""`},
		{"lowercase and is a term", "bread and butter", `"bread"* AND "and"* AND "butter"*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareQuery(tt.query))
		})
	}
}

func TestIsPathPattern(t *testing.T) {
	assert.True(t, isPathPattern("ops/notes.md"))
	assert.False(t, isPathPattern("deploy guide"))
	assert.False(t, isPathPattern("deploy"))
	assert.False(t, isPathPattern("a b/c"))
}
