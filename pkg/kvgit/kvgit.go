// Package kvgit wires the commit-log core (pkg/versioned), the GC wrapper
// (pkg/gc), and the staging buffer (pkg/staged) into the one-call
// constructors callers above the core actually reach for, plus Live, an
// immediate-write unversioned map that lives alongside a versioned store
// for throwaway scratch state.
package kvgit

import (
	"errors"

	"github.com/ashenfad/kvgit/pkg/gc"
	"github.com/ashenfad/kvgit/pkg/kv"
	"github.com/ashenfad/kvgit/pkg/staged"
	"github.com/ashenfad/kvgit/pkg/versioned"
)

// ErrUnknownBackend is returned when Options.Backend names neither
// "memory" nor "disk".
var ErrUnknownBackend = errors.New("kvgit: unknown backend kind")

// Options configures Open/OpenGC. Backend selects the byte-KV
// implementation; Path is required when Backend is "disk" and ignored
// otherwise. Branch defaults to "main" when empty.
type Options struct {
	Backend string // "memory" (default) or "disk"
	Path    string
	Branch  string

	// GC water marks, only consulted by OpenGC.
	HighWaterBytes int
	LowWaterBytes  int
	IsProtected    gc.IsProtected
}

func buildBackend(opts Options) (kv.Store, error) {
	switch opts.Backend {
	case "", "memory":
		return kv.NewMemory(), nil
	case "disk":
		if opts.Path == "" {
			return nil, errors.New("kvgit: disk backend requires Path")
		}
		return kv.NewDisk(opts.Path)
	default:
		return nil, ErrUnknownBackend
	}
}

// Open builds a backend from opts and returns a ready staged.Staged over
// a fresh or reopened branch. No GC wrapper is applied; space reclamation
// is the caller's job (or use OpenGC).
func Open(opts Options) (*staged.Staged, error) {
	backend, err := buildBackend(opts)
	if err != nil {
		return nil, err
	}
	view, err := versioned.Open(backend, opts.Branch, "")
	if err != nil {
		return nil, err
	}
	return staged.New(view, nil, nil), nil
}

// OpenGC is Open plus a GC wrapper: every successful Commit that leaves
// the total size above HighWaterBytes triggers a water-mark rebase (see
// pkg/gc). A zero
// HighWaterBytes means "no GC", identical to Open.
func OpenGC(opts Options) (*staged.Staged, error) {
	backend, err := buildBackend(opts)
	if err != nil {
		return nil, err
	}
	view, err := versioned.Open(backend, opts.Branch, "")
	if err != nil {
		return nil, err
	}
	if opts.HighWaterBytes <= 0 {
		return staged.New(view, nil, nil), nil
	}
	collected, err := gc.New(view, opts.HighWaterBytes, opts.LowWaterBytes, opts.IsProtected)
	if err != nil {
		return nil, err
	}
	return staged.New(collected, nil, nil), nil
}
