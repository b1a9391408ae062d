/*package config handles run configuration for the halo property pipeline:
a TOML parameter file describing the input and output locations, plus the
knobs that bound how the work is split up and how aggressively the shared
filesystem is read.*/
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	snapNrPlaceholder = "%(snap_nr)"
	fileNrPlaceholder = "%(file_nr)"
)

// ConfigurationError reports an invalid configuration value. It is always
// raised before any work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// PathTemplate is a path string containing %(snap_nr) and/or %(file_nr)
// placeholders. Templates are validated once at startup so that a typo
// fails the job before any I/O happens.
type PathTemplate string

// Path substitutes the snapshot and file numbers into the template. Snapshot
// numbers are zero-padded to four digits, matching the snapshot directory
// naming of the simulation outputs.
func (t PathTemplate) Path(snapNr, fileNr int) string {
	s := strings.ReplaceAll(string(t), snapNrPlaceholder,
		fmt.Sprintf("%04d", snapNr))
	return strings.ReplaceAll(s, fileNrPlaceholder, fmt.Sprintf("%d", fileNr))
}

// Sharded returns true if the template expands to a different path per file
// number.
func (t PathTemplate) Sharded() bool {
	return strings.Contains(string(t), fileNrPlaceholder)
}

// Config collects every parameter of a pipeline run. Paths come from the
// parameter file, the remaining fields may be overridden by command line
// flags.
type Config struct {
	// Snapshot is the sharded particle snapshot template. Must contain
	// %(file_nr).
	Snapshot PathTemplate `toml:"snapshot"`
	// Catalogue is the halo catalogue path. Single file.
	Catalogue PathTemplate `toml:"catalogue"`
	// Membership optionally locates particle-to-halo membership shards.
	// Empty means membership is derived from the catalogue geometry.
	Membership PathTemplate `toml:"membership"`
	// Output is the destination of the final property table. Single file.
	Output PathTemplate `toml:"output"`

	SnapNr int `toml:"snap_nr"`

	// Chunks is the number of work units the snapshot is split into.
	Chunks int `toml:"chunks"`
	// Workers is the number of concurrent chunk processors.
	Workers int `toml:"workers"`
	// MaxRanksReading caps how many workers may read from the filesystem
	// at once.
	MaxRanksReading int `toml:"max_ranks_reading"`
	// MaxRetries is how many times a failed chunk is reassigned before the
	// job gives up.
	MaxRetries int `toml:"max_retries"`

	// MinReadRadius is the floor on each halo's read radius, in the
	// snapshot's length units.
	MinReadRadius float64 `toml:"min_read_radius"`
}

// Default returns the configuration used when a parameter is not given.
func Default() *Config {
	return &Config{
		Chunks:          1,
		Workers:         1,
		MaxRanksReading: 1,
		MaxRetries:      1,
		MinReadRadius:   5.0,
	}
}

// Parse reads a TOML parameter file on top of the defaults.
func Parse(fname string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(fname, c); err != nil {
		return nil, errors.Wrapf(err, "could not parse parameter file %s", fname)
	}
	return c, nil
}

// Validate checks every field that can be checked without touching the
// filesystem. All failures are ConfigurationErrors.
func (c *Config) Validate() error {
	if c.Snapshot == "" {
		return &ConfigurationError{"snapshot", "no snapshot template given"}
	}
	if !c.Snapshot.Sharded() {
		return &ConfigurationError{"snapshot",
			fmt.Sprintf("template %q does not contain %s",
				c.Snapshot, fileNrPlaceholder)}
	}
	if c.Catalogue == "" {
		return &ConfigurationError{"catalogue", "no catalogue path given"}
	}
	if c.Output == "" {
		return &ConfigurationError{"output", "no output path given"}
	}
	if c.Membership != "" && !c.Membership.Sharded() {
		return &ConfigurationError{"membership",
			fmt.Sprintf("template %q does not contain %s",
				c.Membership, fileNrPlaceholder)}
	}
	if c.SnapNr < 0 {
		return &ConfigurationError{"snap_nr",
			fmt.Sprintf("snapshot number %d is negative", c.SnapNr)}
	}
	if c.Chunks <= 0 {
		return &ConfigurationError{"chunks",
			fmt.Sprintf("chunk count %d is not positive", c.Chunks)}
	}
	if c.Workers <= 0 {
		return &ConfigurationError{"workers",
			fmt.Sprintf("worker count %d is not positive", c.Workers)}
	}
	if c.MaxRanksReading <= 0 {
		return &ConfigurationError{"max_ranks_reading",
			fmt.Sprintf("reader cap %d is not positive", c.MaxRanksReading)}
	}
	if c.MaxRetries < 0 {
		return &ConfigurationError{"max_retries",
			fmt.Sprintf("retry limit %d is negative", c.MaxRetries)}
	}
	if c.MinReadRadius < 0 {
		return &ConfigurationError{"min_read_radius",
			fmt.Sprintf("radius floor %g is negative", c.MinReadRadius)}
	}
	return nil
}
