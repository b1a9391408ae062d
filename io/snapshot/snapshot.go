/*package snapshot reads and writes the sharded particle snapshot format.
A snapshot is a set of shard files, each holding the particles of one slice
of the simulation volume in the native particle ordering. Each shard stores
per-species blocks (ids, positions, velocities, masses) compressed with
snappy and checksummed with xxhash.*/
package snapshot

// Species enumerates the particle types carried by a snapshot.
type Species int32

const (
	Gas Species = iota
	DarkMatter
	Star
	BlackHole

	NSpecies
)

func (s Species) String() string {
	switch s {
	case Gas:
		return "gas"
	case DarkMatter:
		return "dm"
	case Star:
		return "star"
	case BlackHole:
		return "bh"
	}
	return "unknown"
}

// Block kinds within a shard file.
const (
	KindID int32 = iota
	KindX
	KindV
	KindMp
)

// Header contains the shared metadata of a shard file. Cosmology fields
// follow the conventions of the simulation outputs: Z and Scale describe
// the snapshot time, L is the comoving box size.
type Header struct {
	Z, Scale             float64 // Redshift, scale factor
	OmegaM, OmegaL, H100 float64
	L                    float64 // Box size

	FileNr, NFiles    int64
	NPart, NPartTotal int64 // Particles in this file / in all files
}

// Particles holds the particle arrays of one species within one shard.
// Extra is an optional per-particle scalar joined in from an auxiliary
// input; it is nil unless such an input was supplied.
type Particles struct {
	Species Species
	ID      []int64
	X, V    [][3]float32
	Mp      []float32
	Extra   []float32
}

// N returns the number of particles held.
func (p *Particles) N() int { return len(p.ID) }
