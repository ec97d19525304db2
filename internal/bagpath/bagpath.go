// Package bagpath derives unique output locations for capture sessions.
package bagpath

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// timestampLayout renders UTC wall-clock time as YYYY_MM_DD_HH_MM_SS.
const timestampLayout = "2006_01_02_15_04_05"

// Derive returns "{baseDir}/Bag_{UTC timestamp}" for the given instant.
// Two calls at least one second apart never collide; same-second callers
// needing uniqueness should use a Namer.
func Derive(baseDir string, now time.Time) string {
	return filepath.Join(baseDir, "Bag_"+now.UTC().Format(timestampLayout))
}

// Namer hands out session paths and disambiguates same-second restarts by
// appending a monotonic suffix (_2, _3, ...) instead of reissuing a path.
type Namer struct {
	mu       sync.Mutex
	lastBase string
	count    int
}

// Next returns a path under baseDir that has not been issued before by this
// Namer.
func (n *Namer) Next(baseDir string, now time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := Derive(baseDir, now)
	if base != n.lastBase {
		n.lastBase = base
		n.count = 1
		return base
	}

	n.count++
	return fmt.Sprintf("%s_%d", base, n.count)
}
