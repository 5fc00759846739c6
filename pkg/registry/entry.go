package registry

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Mode selects the sparse-checkout pattern syntax for a reference.
type Mode string

const (
	// ModeCone restricts patterns to whole-directory inclusion. It is git's
	// default and the cheaper one to evaluate.
	ModeCone Mode = "cone"
	// ModeNoCone accepts arbitrary gitignore-style patterns, including
	// single-file inclusion via a leading slash.
	ModeNoCone Mode = "no-cone"
)

// ParseMode converts a string into a Mode. The empty string maps to cone,
// matching git's own default.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeCone):
		return ModeCone, nil
	case string(ModeNoCone):
		return ModeNoCone, nil
	default:
		return "", errors.Errorf("unknown sparse-checkout mode %q: expected %q or %q", s, ModeCone, ModeNoCone)
	}
}

// ReferenceEntry declares one external repository attached to one skill and
// the subset of its tree that must be materialized locally.
type ReferenceEntry struct {
	// SkillName identifies the owning skill; matches the skill's directory name.
	SkillName string `yaml:"skill"`
	// LocalPath is the relative path where the submodule is rooted.
	LocalPath string `yaml:"path"`
	// RemoteURL is the upstream repository location.
	RemoteURL string `yaml:"url"`
	// DesiredPaths is the ordered set of patterns defining what must be
	// materialized. Directory prefixes carry a trailing slash; exact files a
	// leading slash (no-cone only).
	DesiredPaths []string `yaml:"paths"`
	// Mode determines which pattern syntax DesiredPaths must follow.
	Mode Mode `yaml:"mode,omitempty"`
	// PinnedRevision, when set, is the commit the submodule gitlink must
	// point at after reconciliation.
	PinnedRevision string `yaml:"revision,omitempty"`
}

// Validate checks one entry in isolation. Cross-entry checks (localPath
// uniqueness) happen at registry load.
func (e *ReferenceEntry) Validate() error {
	if strings.TrimSpace(e.SkillName) == "" {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "skill", Reason: "skill name must not be empty"}
	}
	if strings.TrimSpace(e.RemoteURL) == "" {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "url", Reason: "remote URL must not be empty"}
	}
	if e.LocalPath == "" {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "path", Reason: "local path must not be empty"}
	}
	if path.IsAbs(e.LocalPath) {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "path", Reason: "local path must be relative"}
	}
	cleaned := path.Clean(e.LocalPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "path", Reason: "local path must not escape the repository root"}
	}
	if len(e.DesiredPaths) == 0 {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "paths", Reason: "desired path set must not be empty"}
	}
	mode, err := ParseMode(string(e.Mode))
	if err != nil {
		return &InvalidDeclarationError{Skill: e.SkillName, Field: "mode", Reason: err.Error()}
	}
	for _, p := range e.DesiredPaths {
		if err := ValidatePatternSyntax(mode, p); err != nil {
			return &InvalidDeclarationError{Skill: e.SkillName, Field: "paths", Reason: err.Error()}
		}
	}
	return nil
}

// EffectiveMode returns the entry's mode with git's cone default applied.
func (e *ReferenceEntry) EffectiveMode() Mode {
	if e.Mode == "" {
		return ModeCone
	}
	return e.Mode
}
