package plugin

import (
	"sort"
	"sync"
	"time"

	"github.com/loomhost/loom/internal/report"
)

// Outcome records how a descriptor's resolution went.
type Outcome int

// Resolution outcomes.
const (
	// OutcomePending - discovered, not yet resolved.
	OutcomePending Outcome = iota

	// OutcomeResolved - instantiated successfully.
	OutcomeResolved

	// OutcomeFailed - instantiation failed; see Record.Err.
	OutcomeFailed
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeResolved:
		return "resolved"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is one catalog entry: a discovered descriptor and its
// resolution outcome.
type Record struct {
	Descriptor Descriptor
	Outcome    Outcome
	Err        error
}

// Registry wraps a descriptor source with a stable, queryable catalog
// of discovered descriptors and their resolution outcomes.
type Registry struct {
	mu       sync.RWMutex
	source   Source
	records  map[string]*Record
	reporter report.Reporter
}

// NewRegistry creates a registry over the given source. A nil reporter
// discards failures.
func NewRegistry(source Source, reporter report.Reporter) *Registry {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Registry{
		source:   source,
		records:  make(map[string]*Record),
		reporter: reporter,
	}
}

// Discover scans a location and folds the results into the catalog.
// Absent or empty locations yield an empty set, never an error.
// Re-invocation is an idempotent refresh: unchanged candidates are not
// duplicated, and already-resolved records keep their outcome.
// Malformed candidates are reported and excluded from the result.
func (r *Registry) Discover(location string) []Descriptor {
	candidates := r.source.Search(location)

	r.mu.Lock()
	for _, c := range candidates {
		if c.Err != nil {
			r.reporter.Report(report.Failure{
				Identifier: c.Dir,
				Phase:      report.PhaseDiscovery,
				Cause:      c.Err,
				Time:       time.Now(),
			})
			continue
		}

		key := c.Descriptor.Key()
		if rec, ok := r.records[key]; ok {
			rec.Descriptor = c.Descriptor
			continue
		}
		r.records[key] = &Record{Descriptor: c.Descriptor}
	}

	descriptors := make([]Descriptor, 0, len(r.records))
	for _, rec := range r.records {
		descriptors = append(descriptors, rec.Descriptor)
	}
	r.mu.Unlock()

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Key() < descriptors[j].Key()
	})
	return descriptors
}

// Resolve instantiates a discovered descriptor inside a fresh
// isolation context, records the outcome, and reports failures.
func (r *Registry) Resolve(namespace, identifier string) (*Instance, error) {
	key := namespace + "." + identifier

	r.mu.RLock()
	rec, known := r.records[key]
	var desc Descriptor
	if known {
		desc = rec.Descriptor
	}
	r.mu.RUnlock()

	inst, err := r.source.Instantiate(namespace, identifier)

	r.mu.Lock()
	if rec, ok := r.records[key]; ok {
		if err != nil {
			rec.Outcome = OutcomeFailed
			rec.Err = err
		} else {
			rec.Outcome = OutcomeResolved
			rec.Err = nil
		}
	}
	r.mu.Unlock()

	if err != nil {
		r.reporter.Report(report.Failure{
			Namespace:  namespace,
			Identifier: identifier,
			Version:    desc.Version,
			Phase:      report.PhaseResolve,
			Cause:      err,
			Time:       time.Now(),
		})
		return nil, err
	}
	return inst, nil
}

// Records returns a copy of the catalog sorted by key.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Descriptor.Key() < records[j].Descriptor.Key()
	})
	return records
}

// Record returns the catalog entry for one descriptor.
func (r *Registry) Record(namespace, identifier string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[namespace+"."+identifier]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
