// Package registry loads and validates the declared (skill, reference)
// entries that the reconciler converges toward. It only ever reads and
// writes the declaration file; working trees are the gateway's business.
package registry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the declaration file looked up when no explicit
// registry path is configured.
const DefaultFileName = "references.yaml"

// lockTimeout is the maximum time to wait for the declaration file lock
const lockTimeout = 2 * time.Second

type declarationFile struct {
	References []ReferenceEntry `yaml:"references"`
}

// Registry is the validated, in-memory form of the declaration file.
type Registry struct {
	sourcePath string
	entries    []ReferenceEntry
}

// Load parses and validates the declaration file at sourcePath. A missing
// file yields an empty registry rather than an error so that the first
// add-reference invocation can bootstrap it.
func Load(sourcePath string) (*Registry, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{sourcePath: sourcePath}, nil
		}
		return nil, errors.Wrapf(err, "failed to read declaration file %s", sourcePath)
	}

	var decl declarationFile
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, errors.Wrapf(err, "failed to parse declaration file %s", sourcePath)
	}

	r := &Registry{sourcePath: sourcePath}
	for i := range decl.References {
		if err := r.add(decl.References[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(entry ReferenceEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	cleaned := filepath.ToSlash(filepath.Clean(entry.LocalPath))
	for _, existing := range r.entries {
		if filepath.ToSlash(filepath.Clean(existing.LocalPath)) == cleaned {
			return &InvalidDeclarationError{
				Skill:  entry.SkillName,
				Field:  "path",
				Reason: "local path " + entry.LocalPath + " is already declared by skill " + existing.SkillName,
			}
		}
	}
	r.entries = append(r.entries, entry)
	return nil
}

// SourcePath returns the declaration file the registry was loaded from.
func (r *Registry) SourcePath() string {
	return r.sourcePath
}

// Entries returns all declared entries in declaration order.
func (r *Registry) Entries() []ReferenceEntry {
	out := make([]ReferenceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the entries matching the given selectors. An empty skillName
// matches every skill; an empty localPath matches every path. An empty
// result is not an error.
func (r *Registry) Find(skillName, localPath string) []ReferenceEntry {
	var out []ReferenceEntry
	for _, e := range r.entries {
		if skillName != "" && e.SkillName != skillName {
			continue
		}
		if localPath != "" && filepath.Clean(e.LocalPath) != filepath.Clean(localPath) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Append validates a new entry against the registry and adds it in memory.
// Call Save to persist.
func (r *Registry) Append(entry ReferenceEntry) error {
	return r.add(entry)
}

// Save writes the registry back to its declaration file under a file lock so
// concurrent invocations do not clobber each other's appends.
func (r *Registry) Save(ctx context.Context) error {
	if r.sourcePath == "" {
		return errors.New("registry has no source path to save to")
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fileLock := flock.New(r.sourcePath + ".lock")
	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return errors.Wrap(err, "failed to acquire declaration file lock")
	}
	if !locked {
		return errors.Errorf("timed out waiting for lock on %s", r.sourcePath)
	}
	defer fileLock.Unlock()

	data, err := yaml.Marshal(declarationFile{References: r.entries})
	if err != nil {
		return errors.Wrap(err, "failed to marshal declarations")
	}

	if dir := filepath.Dir(r.sourcePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create declaration directory")
		}
	}
	if err := os.WriteFile(r.sourcePath, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write declaration file %s", r.sourcePath)
	}
	return nil
}
