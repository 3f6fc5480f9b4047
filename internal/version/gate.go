package version

import (
	"context"
	"fmt"
	"strings"
	"time"

	"proxyfarm/internal/decide"
	"proxyfarm/internal/services"
)

// WorkerInfo describes one online worker.
type WorkerInfo struct {
	Name       string
	Host       string
	RoutingKey string
	Compatible bool
	LastSeen   time.Time
}

// Partition buckets a roster by compatibility with Key.
type Partition struct {
	Key          string
	Compatible   []WorkerInfo
	Incompatible []WorkerInfo
	Empty        bool
}

// Mixed reports whether both compatible and incompatible workers are online.
func (p Partition) Mixed() bool {
	return len(p.Compatible) > 0 && len(p.Incompatible) > 0
}

// NoCompatibleWorkersError is fatal: no online worker would claim the tasks.
type NoCompatibleWorkersError struct {
	Key     string
	Workers []WorkerInfo
}

func (e *NoCompatibleWorkersError) Error() string {
	keys := make([]string, len(e.Workers))
	for i, w := range e.Workers {
		keys[i] = w.Name + "=" + w.RoutingKey
	}
	return fmt.Sprintf("no compatible workers for key %s (online: %s)", e.Key, strings.Join(keys, ", "))
}

func (e *NoCompatibleWorkersError) Unwrap() error { return services.ErrConfiguration }

// Check partitions roster against key. An empty roster is not an error; the
// caller decides whether to proceed. A roster with no compatible worker is.
func Check(key string, roster []WorkerInfo) (Partition, error) {
	p := Partition{Key: key}
	if len(roster) == 0 {
		p.Empty = true
		return p, nil
	}
	for _, w := range roster {
		w.Compatible = w.RoutingKey == key
		if w.Compatible {
			p.Compatible = append(p.Compatible, w)
		} else {
			p.Incompatible = append(p.Incompatible, w)
		}
	}
	if len(p.Compatible) == 0 {
		return p, &NoCompatibleWorkersError{Key: key, Workers: p.Incompatible}
	}
	return p, nil
}

// Confirm asks whether to proceed with a mixed roster. Rosters that are not
// mixed need no confirmation.
func Confirm(ctx context.Context, d decide.Decider, p Partition) (bool, error) {
	if !p.Mixed() {
		return true, nil
	}
	answer, err := decide.AskValid(ctx, d, decide.MixedRoster(names(p.Compatible), names(p.Incompatible)))
	if err != nil {
		return false, err
	}
	return answer == decide.DecisionYes, nil
}

func names(workers []WorkerInfo) []string {
	out := make([]string, len(workers))
	for i, w := range workers {
		out[i] = fmt.Sprintf("%s (%s)", w.Name, w.RoutingKey)
	}
	return out
}
