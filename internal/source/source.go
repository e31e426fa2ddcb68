// Package source discovers and decodes declarative agent definitions.
package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/storage"
)

// DefaultPattern matches one config file per agent directory.
const DefaultPattern = "*/config.yaml"

const defaultParallelism = 8

// Source produces raw agent records for agent.Load.
type Source interface {
	Records(ctx context.Context) ([]agent.Record, error)
}

// Dir reads agents laid out as <name>/config.yaml below a storage root.
type Dir struct {
	store       *storage.Storage
	pattern     string
	parallelism int
}

// DirOption configures a Dir source.
type DirOption func(*Dir)

// WithPattern overrides the discovery glob.
func WithPattern(pattern string) DirOption {
	return func(d *Dir) {
		if pattern != "" {
			d.pattern = pattern
		}
	}
}

// WithParallelism bounds how many files are decoded at once.
func WithParallelism(n int) DirOption {
	return func(d *Dir) {
		if n > 0 {
			d.parallelism = n
		}
	}
}

// NewDir creates a directory source.
func NewDir(store *storage.Storage, opts ...DirOption) *Dir {
	d := &Dir{
		store:       store,
		pattern:     DefaultPattern,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the directory being scanned.
func (d *Dir) Root() string {
	return d.store.BasePath()
}

// Records discovers and decodes every matching file. Files that fail to decode
// are returned as records with Err set so the loader can report them alongside
// other violations. I/O failures abort the scan.
func (d *Dir) Records(ctx context.Context) ([]agent.Record, error) {
	paths, err := d.store.Glob(ctx, d.pattern)
	if err != nil {
		return nil, fmt.Errorf("discover agents: %w", err)
	}

	records := make([]agent.Record, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for i, p := range paths {
		g.Go(func() error {
			rec, err := d.read(gctx, p)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Dir) read(ctx context.Context, rel string) (agent.Record, error) {
	data, err := d.store.Get(ctx, []string{rel})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Removed between discovery and read.
			return agent.Record{Source: rel, Dir: dirName(rel), Err: err}, nil
		}
		return agent.Record{}, fmt.Errorf("read %s: %w", rel, err)
	}

	rec, err := agent.ParseRecord(data)
	if err != nil {
		rec = agent.Record{Err: err}
	}
	rec.Source = rel
	rec.Dir = dirName(rel)
	return rec, nil
}

// dirName returns the directory directly containing rel, or "" at the root.
func dirName(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return path.Base(dir)
}

// Static is a fixed set of records, useful for embedding and tests.
type Static []agent.Record

// Records returns a copy of the records sorted by name.
func (s Static) Records(ctx context.Context) ([]agent.Record, error) {
	out := append([]agent.Record(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
