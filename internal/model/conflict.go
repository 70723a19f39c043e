package model

import (
	"path/filepath"
	"strings"
)

type ResolutionChoice string

const (
	ChoiceOurs     ResolutionChoice = "OURS"
	ChoiceTheirs   ResolutionChoice = "THEIRS"
	ChoiceCopyBoth ResolutionChoice = "COPY_BOTH"
)

func (c ResolutionChoice) Valid() bool {
	switch c {
	case ChoiceOurs, ChoiceTheirs, ChoiceCopyBoth:
		return true
	default:
		return false
	}
}

// ConflictFile is one workspace path left unresolved by a paused
// integration.
type ConflictFile struct {
	Path     string `json:"path"`
	IsBinary bool   `json:"is_binary"`
}

type ResolutionItem struct {
	Path   string           `json:"path"`
	Choice ResolutionChoice `json:"choice"`
}

// textSuffixes are the formats the editor produces; anything else is
// treated as binary so the UI never tries to merge it inline.
var textSuffixes = []string{".vnode.json", ".md", ".txt", ".json"}

func IsBinaryPath(path string) bool {
	lower := strings.ToLower(filepath.Base(path))
	for _, suffix := range textSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	return true
}

// ConflictCopyName derives the rename target for a COPY_BOTH resolution:
// local content survives under the derived name, incoming content keeps
// the original path.
func ConflictCopyName(path, timestamp string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return stem + "_conflict_" + timestamp + ext
}
