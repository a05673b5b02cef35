package glossary

import (
	"strings"
)

// Per-chapter acceptance caps.
const (
	StrictLimit  = 1
	DefaultLimit = 10
)

// LimitFor returns the per-chapter cap for the given mode.
func LimitFor(strict bool) int {
	if strict {
		return StrictLimit
	}
	return DefaultLimit
}

// Reason explains the outcome of screening one candidate.
type Reason int

const (
	Accepted Reason = iota
	RejectedInvalid
	RejectedStopword
	RejectedDuplicate
	RejectedContainment
	RejectedCap
	RejectedFull
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedInvalid:
		return "invalid"
	case RejectedStopword:
		return "stopword"
	case RejectedDuplicate:
		return "duplicate"
	case RejectedContainment:
		return "containment duplicate"
	case RejectedCap:
		return "per-chapter cap"
	case RejectedFull:
		return "glossary full"
	default:
		return "unknown"
	}
}

// Decision records what happened to a candidate. Conflict names the existing
// term responsible for a duplicate or containment rejection.
type Decision struct {
	Candidate Candidate
	Reason    Reason
	Conflict  string
}

// Accepted reports whether the candidate entered the store.
func (d Decision) Accepted() bool { return d.Reason == Accepted }

// Filter screens candidates against a stoplist and the current store.
// It holds no per-run state; use Batch for the per-chapter cap.
type Filter struct {
	stop map[string]struct{}
}

// NewFilter returns a filter using the default stoplist plus extra words.
func NewFilter(extra ...string) *Filter {
	stop := make(map[string]struct{}, len(defaultStops)+len(extra))
	for w := range defaultStops {
		stop[w] = struct{}{}
	}
	for _, w := range extra {
		if b := BaseTerm(w); b != "" {
			stop[b] = struct{}{}
		}
	}
	return &Filter{stop: stop}
}

// IsStopword reports whether term's base is on this filter's stoplist.
func (f *Filter) IsStopword(term string) bool {
	_, ok := f.stop[BaseTerm(term)]
	return ok
}

// Screen applies the stoplist and the duplicate/containment rules. It never
// applies a cap.
func (f *Filter) Screen(c Candidate, s *Store) Decision {
	e := c.Entry()
	base := e.Base()
	if base == "" || e.Definition == "" || strings.ContainsAny(e.Term, ":\n") {
		return Decision{Candidate: c, Reason: RejectedInvalid}
	}
	if _, ok := f.stop[base]; ok {
		return Decision{Candidate: c, Reason: RejectedStopword}
	}
	// Linear scan: the store is capped, so no index is kept.
	for i, existing := range s.bases {
		switch {
		case existing == base:
			return Decision{Candidate: c, Reason: RejectedDuplicate, Conflict: s.entries[i].Term}
		case strings.Contains(existing, base), strings.Contains(base, existing):
			return Decision{Candidate: c, Reason: RejectedContainment, Conflict: s.entries[i].Term}
		}
	}
	return Decision{Candidate: c, Reason: Accepted}
}

// Admit is the single-candidate form: it reports whether c may enter s as
// the first term of a chapter batch in the given mode.
func (f *Filter) Admit(c Candidate, s *Store, strict bool) bool {
	return f.Batch(LimitFor(strict)).Admit(c, s).Accepted()
}

// Batch starts a new acceptance window with the given cap. A limit of zero
// or less means uncapped.
func (f *Filter) Batch(limit int) *Batch {
	return &Batch{filter: f, limit: limit}
}

// Batch applies the filter to one chapter's candidates, counting acceptances
// against the cap in proposal order.
type Batch struct {
	filter   *Filter
	limit    int
	accepted int
}

// Admit screens c and, if it passes, charges it against the cap.
func (b *Batch) Admit(c Candidate, s *Store) Decision {
	d := b.filter.Screen(c, s)
	if !d.Accepted() {
		return d
	}
	if b.limit > 0 && b.accepted >= b.limit {
		d.Reason = RejectedCap
		return d
	}
	b.accepted++
	return d
}

// Accepted returns how many candidates this batch has admitted.
func (b *Batch) Accepted() int { return b.accepted }
