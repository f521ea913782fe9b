package layer

import (
	"regexp"
	"strings"

	"github.com/dshills/strata/internal/config/tree"
)

// DirectiveIgnoreTargetKey asks the merger to delete the listed keys from the
// target mapping before the annotated source mapping is merged into it:
//
//	[database.sequelize]
//	# @merge-ignore-target-key storage, logging
//	dialect = "mysql"
const DirectiveIgnoreTargetKey = "@merge-ignore-target-key"

var ignoreTargetKeyPattern = regexp.MustCompile(regexp.QuoteMeta(DirectiveIgnoreTargetKey) + `[ \t]+(.*)`)

// ResolveDirectives returns the target keys that the annotation of source
// asks to delete. The result is empty when source has no annotation.
func ResolveDirectives(source *tree.Map) []string {
	return ParseDirectives(source.Annotation())
}

// ParseDirectives extracts the keys of every ignore-target-key directive in
// text. Keys are trimmed, empty keys dropped and duplicates removed; text
// that does not match the directive grammar is ignored.
func ParseDirectives(text string) []string {
	if !strings.Contains(text, DirectiveIgnoreTargetKey) {
		return nil
	}

	var keys []string
	seen := make(map[string]struct{})
	for _, match := range ignoreTargetKeyPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(match[1], ",") {
			key := strings.TrimSpace(part)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}
