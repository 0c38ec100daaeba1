package reconciler

import gitignore "github.com/sabhiram/go-gitignore"

// defaultExclusionLines are always in effect, on top of whatever a
// SyncConfig adds via ExclusionGlobs, matching the teacher's
// sync_ignore.go baseline of editor/OS/VCS noise that should never
// round-trip through a sync.
var defaultExclusionLines = []string{
	".git",
	"*.tmp",
	"*.log",
	".DS_Store",
	"Thumbs.db",
	".vscode",
	".idea",
}

// Exclusions compiles a SyncConfig's ExclusionGlobs together with the
// engine's baseline into one matcher.
type Exclusions struct {
	matcher *gitignore.GitIgnore
}

// NewExclusions compiles globs (from SyncConfig.ExclusionGlobs) plus
// the built-in baseline into a ready matcher.
func NewExclusions(globs []string) *Exclusions {
	lines := append(append([]string(nil), defaultExclusionLines...), globs...)
	return &Exclusions{matcher: gitignore.CompileIgnoreLines(lines...)}
}

// Excluded reports whether path should be skipped entirely — never
// scanned, never triplet-formed, never synced in either direction.
func (e *Exclusions) Excluded(path string) bool {
	if e == nil || e.matcher == nil {
		return false
	}
	return e.matcher.MatchesPath(path)
}
