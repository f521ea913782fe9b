package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/strata/internal/config/tree"
)

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"plain comment", "# just a note", nil},
		{"single key", "# @merge-ignore-target-key storage", []string{"storage"}},
		{"list", "@merge-ignore-target-key a, b", []string{"a", "b"}},
		{"whitespace", "@merge-ignore-target-key \t a ,  b  ", []string{"a", "b"}},
		{"empty entries", "@merge-ignore-target-key a,, ,b,", []string{"a", "b"}},
		{"duplicates", "@merge-ignore-target-key a, a, b", []string{"a", "b"}},
		{
			"multiple occurrences",
			"# @merge-ignore-target-key a\n# unrelated\n# @merge-ignore-target-key b, a\n",
			[]string{"a", "b"},
		},
		{"missing separator", "@merge-ignore-target-keya", nil},
		{"no keys", "@merge-ignore-target-key", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDirectives(tt.text))
		})
	}
}

func TestResolveDirectives(t *testing.T) {
	assert.Empty(t, ResolveDirectives(nil))
	assert.Empty(t, ResolveDirectives(tree.NewMap()))

	m := mapOf("dialect", "mysql")
	m.SetAnnotation("@merge-ignore-target-key storage, logging")
	assert.Equal(t, []string{"storage", "logging"}, ResolveDirectives(m))
}
