package snapshot

import (
	"github.com/pkg/errors"
)

// Set is the full sharded snapshot: per-shard headers read eagerly (they are
// tiny), particle data left on disk until a chunk asks for it.
type Set struct {
	fnames []string
	hds    []Header
}

// OpenSet opens the snapshot whose shard i lives at pathFor(i). The shard
// count is taken from the header of shard 0, and every header is checked
// for consistency against it.
func OpenSet(pathFor func(fileNr int) string) (*Set, error) {
	f0, err := Open(pathFor(0))
	if err != nil {
		return nil, err
	}
	hd0 := *f0.Header()
	f0.Close()

	if hd0.NFiles < 1 {
		return nil, errors.Errorf(
			"%s claims the snapshot has %d files", pathFor(0), hd0.NFiles,
		)
	}

	set := &Set{
		fnames: make([]string, hd0.NFiles),
		hds:    make([]Header, hd0.NFiles),
	}
	set.fnames[0], set.hds[0] = pathFor(0), hd0

	for i := 1; i < int(hd0.NFiles); i++ {
		f, err := Open(pathFor(i))
		if err != nil {
			return nil, err
		}
		hd := *f.Header()
		f.Close()

		if hd.NFiles != hd0.NFiles || hd.FileNr != int64(i) ||
			hd.NPartTotal != hd0.NPartTotal {
			return nil, errors.Errorf(
				"shard %s is inconsistent with %s: file %d/%d, %d total particles vs %d",
				pathFor(i), pathFor(0), hd.FileNr, hd.NFiles,
				hd.NPartTotal, hd0.NPartTotal,
			)
		}

		set.fnames[i], set.hds[i] = pathFor(i), hd
	}

	return set, nil
}

// Files returns the number of shards in the snapshot.
func (s *Set) Files() int { return len(s.fnames) }

// Header returns the header of shard i.
func (s *Set) Header(i int) *Header { return &s.hds[i] }

// Filename returns the path of shard i.
func (s *Set) Filename(i int) string { return s.fnames[i] }

// NPart returns the per-shard particle counts, used by the chunk planner
// for load balancing.
func (s *Set) NPart() []int64 {
	out := make([]int64, len(s.hds))
	for i := range s.hds {
		out[i] = s.hds[i].NPart
	}
	return out
}

// OpenFile opens shard i for block reads.
func (s *Set) OpenFile(i int) (*File, error) {
	return Open(s.fnames[i])
}
