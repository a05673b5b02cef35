package glossary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxEntries is the glossary capacity used when none is configured.
const DefaultMaxEntries = 1000

// MaxLineBytes bounds a glossary line. Longer lines are skipped as malformed.
const MaxLineBytes = 64 * 1024

// ErrReadOnly is returned by Save for a store whose file could not be read.
var ErrReadOnly = errors.New("glossary was not read from disk; refusing to overwrite it")

// Eviction selects which end of the store is dropped when it exceeds its
// capacity.
type Eviction int

const (
	// KeepOldest keeps the first MaxEntries entries and refuses new terms
	// once the store is full.
	KeepOldest Eviction = iota
	// KeepNewest drops the oldest entries on save.
	KeepNewest
)

// ParseEviction maps a config value to an Eviction. Unknown values select
// KeepOldest.
func ParseEviction(s string) Eviction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "newest", "keep-newest", "drop-oldest":
		return KeepNewest
	default:
		return KeepOldest
	}
}

func (e Eviction) String() string {
	if e == KeepNewest {
		return "keep-newest"
	}
	return "keep-oldest"
}

const (
	renderHeader  = "GLOSSARY: keep these exact term mappings in the translation:"
	renderTrailer = "Translate every glossary term exactly as listed so names and terms stay consistent across chapters."
)

// Store is an ordered, deduplicated term -> definition list. It has a single
// owner and is not safe for concurrent mutation.
type Store struct {
	entries  []Entry
	bases    []string
	max      int
	eviction Eviction
	readOnly bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries sets the capacity. Values below one select DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithEviction sets the eviction policy.
func WithEviction(e Eviction) Option {
	return func(s *Store) { s.eviction = e }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{max: DefaultMaxEntries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads a glossary file. A missing file yields an empty store and no
// error. On any other read error the returned store is empty and read-only:
// callers may log the error and carry on without a glossary, and Save will
// not replace the file it failed to read.
func Load(path string, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(opts...), nil
	}
	if err != nil {
		return readOnly(opts), fmt.Errorf("failed to open glossary: %w", err)
	}
	defer f.Close()

	s, err := Parse(f, opts...)
	if err != nil {
		return readOnly(opts), fmt.Errorf("failed to read glossary %s: %w", path, err)
	}
	return s, nil
}

func readOnly(opts []Option) *Store {
	s := New(opts...)
	s.readOnly = true
	return s
}

// Parse reads the `term: definition` line format. Lines without a colon,
// with an empty side or longer than MaxLineBytes are skipped. A repeated
// base term keeps its first line. On a read error the entries parsed so
// far are returned with the error and the store is read-only.
func Parse(r io.Reader, opts ...Option) (*Store, error) {
	s := New(opts...)
	br := bufio.NewReader(r)
	for {
		line, err := readLine(br)
		if err != nil && err != io.EOF {
			s.readOnly = true
			return s, err
		}
		if line != "" {
			s.parseLine(line)
		}
		if err == io.EOF {
			return s, nil
		}
	}
}

// readLine returns the next line without its terminator. Over-long lines
// are consumed and returned as "".
func readLine(br *bufio.Reader) (string, error) {
	var (
		buf  []byte
		long bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !long {
			buf = append(buf, chunk...)
			long = len(buf) > MaxLineBytes+2
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		line := strings.TrimRight(string(buf), "\r\n")
		if long || len(line) > MaxLineBytes {
			line = ""
		}
		return line, err
	}
}

func (s *Store) parseLine(line string) {
	term, def, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	e := Entry{Term: strings.TrimSpace(term), Definition: strings.TrimSpace(def)}
	if e.Term == "" || e.Definition == "" {
		return
	}
	base := e.Base()
	if base == "" || s.indexOf(base) >= 0 {
		return
	}
	s.append(e, base)
}

func (s *Store) append(e Entry, base string) {
	s.entries = append(s.entries, e)
	s.bases = append(s.bases, base)
}

func (s *Store) indexOf(base string) int {
	for i, b := range s.bases {
		if b == base {
			return i
		}
	}
	return -1
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// MaxEntries returns the capacity.
func (s *Store) MaxEntries() int { return s.max }

// Eviction returns the eviction policy.
func (s *Store) Eviction() Eviction { return s.eviction }

// Full reports whether a KeepOldest store has reached its capacity.
func (s *Store) Full() bool {
	return s.eviction == KeepOldest && len(s.entries) >= s.max
}

// Entries returns a copy of the entries in store order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Terms returns the known term strings in store order.
func (s *Store) Terms() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Term
	}
	return out
}

// Lookup finds the entry whose base term matches term's base term.
func (s *Store) Lookup(term string) (Entry, bool) {
	if i := s.indexOf(BaseTerm(term)); i >= 0 {
		return s.entries[i], true
	}
	return Entry{}, false
}

// Merge offers candidates to the store in order. Each candidate that the
// batch admits is appended; the returned decisions cover every candidate.
func (s *Store) Merge(candidates []Candidate, b *Batch) (int, []Decision) {
	decisions := make([]Decision, 0, len(candidates))
	accepted := 0
	for _, c := range candidates {
		if s.Full() {
			decisions = append(decisions, Decision{Candidate: c, Reason: RejectedFull})
			continue
		}
		d := b.Admit(c, s)
		if d.Accepted() {
			e := c.Entry()
			s.append(e, e.Base())
			accepted++
		}
		decisions = append(decisions, d)
	}
	return accepted, decisions
}

// Add screens a single operator-supplied candidate without a cap and
// appends it when admitted.
func (s *Store) Add(c Candidate, f *Filter) Decision {
	_, decisions := s.Merge([]Candidate{c}, f.Batch(0))
	return decisions[0]
}

// Remove deletes the entry whose base term matches term.
func (s *Store) Remove(term string) bool {
	i := s.indexOf(BaseTerm(term))
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.bases = append(s.bases[:i], s.bases[i+1:]...)
	return true
}

// Truncate enforces the capacity according to the eviction policy and
// returns the number of dropped entries.
func (s *Store) Truncate() int {
	over := len(s.entries) - s.max
	if over <= 0 {
		return 0
	}
	if s.eviction == KeepNewest {
		s.entries = append([]Entry(nil), s.entries[over:]...)
		s.bases = append([]string(nil), s.bases[over:]...)
	} else {
		s.entries = s.entries[:s.max]
		s.bases = s.bases[:s.max]
	}
	return over
}

// Render formats the glossary for a translation prompt. An empty store
// renders as "" so the prompt can omit the section.
func (s *Store) Render() string {
	if len(s.entries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(renderHeader)
	sb.WriteByte('\n')
	for _, e := range s.entries {
		sb.WriteString("- ")
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	sb.WriteString(renderTrailer)
	return sb.String()
}

// WriteTo writes the file form: one `term: definition` line per entry.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, e := range s.entries {
		m, err := bw.WriteString(e.String() + "\n")
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Writable reports whether Save may write the store. It is false when the
// store stands in for a file that failed to load.
func (s *Store) Writable() bool { return !s.readOnly }

// Save truncates the store to its capacity and writes it to path atomically.
// A read-only store returns ErrReadOnly and leaves path untouched.
func (s *Store) Save(path string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.Truncate()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create glossary directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".glossary-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp glossary: %w", err)
	}
	defer os.Remove(tmp.Name())
	_ = tmp.Chmod(0644)

	if _, err := s.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write glossary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write glossary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace glossary: %w", err)
	}
	return nil
}
