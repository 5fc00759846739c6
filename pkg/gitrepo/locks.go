package gitrepo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// lockAcquireTimeout bounds how long an operation waits for another refsync
// process working on the same submodule path.
const lockAcquireTimeout = 30 * time.Second

// pathLocks serializes operations per resolved absolute path. Git is not
// safe for concurrent mutation of one .git directory, so the gateway holds
// an in-process mutex per path plus a file lock for cross-process exclusion.
type pathLocks struct {
	mu      sync.Mutex
	byPath  map[string]*sync.Mutex
	lockDir string
}

func newPathLocks(lockDir string) *pathLocks {
	return &pathLocks{
		byPath:  make(map[string]*sync.Mutex),
		lockDir: lockDir,
	}
}

func (l *pathLocks) mutexFor(absPath string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byPath[absPath]
	if !ok {
		m = &sync.Mutex{}
		l.byPath[absPath] = m
	}
	return m
}

// acquire takes both locks for absPath and returns a release func. The file
// lock lives under the superproject's .git so it never pollutes the working
// tree.
func (l *pathLocks) acquire(ctx context.Context, absPath string) (func(), error) {
	m := l.mutexFor(absPath)
	m.Lock()

	if err := os.MkdirAll(l.lockDir, 0o755); err != nil {
		m.Unlock()
		return nil, errors.Wrap(err, "failed to create lock directory")
	}

	sum := sha1.Sum([]byte(absPath))
	lockPath := filepath.Join(l.lockDir, hex.EncodeToString(sum[:])+".lock")

	lockCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(lockCtx, 250*time.Millisecond)
	if err != nil {
		m.Unlock()
		return nil, errors.Wrapf(err, "failed to lock %s", absPath)
	}
	if !locked {
		m.Unlock()
		return nil, errors.Errorf("timed out waiting for lock on %s", absPath)
	}

	return func() {
		fileLock.Unlock()
		m.Unlock()
	}, nil
}
