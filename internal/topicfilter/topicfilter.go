// Package topicfilter resolves the configured topic list into the concrete
// recording scope for a capture session.
package topicfilter

import (
	"fmt"

	"github.com/daqflow/bagcap/internal/config"
)

// Scope is the resolved recording scope for one session.
type Scope struct {
	RecordAll bool     // Discover and record every available topic
	Topics    []string // Explicit topic names; empty when RecordAll is set
}

// Resolve maps a configured topic list to a Scope. A single "*" entry means
// record-all with no explicit list. Explicit lists are deduplicated with
// input order preserved. An empty list, or a wildcard mixed with explicit
// names, is a configuration error.
func Resolve(topics []string) (Scope, error) {
	if len(topics) == 0 {
		return Scope{}, fmt.Errorf("%w: logged topic list is empty", config.ErrInvalid)
	}

	if topics[0] == config.Wildcard {
		if len(topics) > 1 {
			return Scope{}, fmt.Errorf("%w: wildcard %q mixed with explicit topics", config.ErrInvalid, config.Wildcard)
		}
		return Scope{RecordAll: true}, nil
	}

	seen := make(map[string]struct{}, len(topics))
	deduped := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic == config.Wildcard {
			return Scope{}, fmt.Errorf("%w: wildcard %q mixed with explicit topics", config.ErrInvalid, config.Wildcard)
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		deduped = append(deduped, topic)
	}

	return Scope{Topics: deduped}, nil
}
