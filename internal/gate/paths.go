package gate

import (
	"regexp"
	"strings"

	"github.com/intentgate/intent-gate/internal/util"
)

// globMeta are the characters that switch a scope entry from prefix
// matching to gitignore-style glob matching.
const globMeta = "*?[]"

// InScope reports whether target falls inside any owned-scope entry.
func InScope(target string, scopes []string, workDir string) bool {
	for _, scope := range scopes {
		if matchScope(scope, target, workDir) {
			return true
		}
	}
	return false
}

// matchScope matches one scope entry against one target path. Entries with
// glob metacharacters match gitignore-style against the normalized relative
// path; literal entries are prefix matches on the absolute path, exact or
// at a separator boundary, so "src" covers "src/foo.ts" but never
// "srctool.ts".
func matchScope(scope, target, workDir string) bool {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return false
	}

	if strings.ContainsAny(scope, globMeta) {
		rel := util.PosixRel(target, workDir)
		return matchGlob(scope, rel)
	}

	absScope := util.AbsIn(scope, workDir)
	absTarget := util.AbsIn(target, workDir)
	if absTarget == absScope {
		return true
	}
	return strings.HasPrefix(absTarget, absScope+string('/')) ||
		strings.HasPrefix(absTarget, absScope+string('\\'))
}

// matchGlob implements the gitignore-style subset the scope entries use:
// "**" crosses separators, "*" and "?" do not, "[...]" is a character
// class. A pattern without "/" matches against any path suffix segment; a
// pattern with "/" is anchored to the workspace root.
func matchGlob(pattern, rel string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	if strings.Contains(pattern, "/") {
		return re.MatchString(rel)
	}
	// Segment-relative pattern: try the full path and every sub-path.
	if re.MatchString(rel) {
		return true
	}
	segments := strings.Split(rel, "/")
	for i := 1; i < len(segments); i++ {
		if re.MatchString(strings.Join(segments[i:], "/")) {
			return true
		}
	}
	return false
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				// "**/" also swallows the separator so "a/**/b" matches "a/b".
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					i++
					b.WriteString(`(?:[^/]*/)*`)
				} else {
					b.WriteString(`.*`)
				}
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`[^/]`)
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				break
			}
			b.WriteString(pattern[i : i+end+1])
			i += end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	// A glob naming a directory covers everything beneath it.
	b.WriteString(`(?:/.*)?$`)
	return regexp.Compile(b.String())
}
