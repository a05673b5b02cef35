package glossary

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBaseTerm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Elena", want: "elena"},
		{name: "with origin", input: "Elena [エレナ]", want: "elena"},
		{name: "surrounding space", input: "  Black Lotus  [黒蓮]", want: "black lotus"},
		{name: "only bracket", input: "[エレナ]", want: ""},
		{name: "mixed case", input: "MIRA", want: "mira"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseTerm(tt.input); got != tt.want {
				t.Errorf("BaseTerm(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasOrigin(t *testing.T) {
	tests := map[string]bool{
		"Elena [エレナ]": true,
		"Elena":        false,
		"Elena []":     false,
		"Elena [":      false,
	}
	for term, want := range tests {
		if got := HasOrigin(term); got != want {
			t.Errorf("HasOrigin(%q) = %v, want %v", term, got, want)
		}
	}
}

func TestFilter_Stoplist(t *testing.T) {
	f := NewFilter()
	s := New()

	for _, term := range []string{"king", "King", "KING [王]", "forest"} {
		d := f.Screen(Candidate{Term: term, Definition: "generic"}, s)
		if d.Reason != RejectedStopword {
			t.Errorf("Screen(%q) = %v, want stopword", term, d.Reason)
		}
	}
	if f.Admit(Candidate{Term: "king", Definition: "generic title"}, s, false) {
		t.Error("expected king to be rejected in non-strict mode")
	}
	if f.Admit(Candidate{Term: "king", Definition: "generic title"}, s, true) {
		t.Error("expected king to be rejected in strict mode")
	}
}

func TestFilter_ExtraStopwords(t *testing.T) {
	f := NewFilter("Senpai")
	d := f.Screen(Candidate{Term: "senpai", Definition: "honorific"}, New())
	if d.Reason != RejectedStopword {
		t.Errorf("expected extra stopword rejection, got %v", d.Reason)
	}
}

func TestFilter_ContainmentBothWays(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name     string
		existing string
		proposed string
		want     Reason
	}{
		{name: "origin form of existing", existing: "Elena", proposed: "Elena [エレナ]", want: RejectedDuplicate},
		{name: "plain form of existing origin", existing: "Elena [エレナ]", proposed: "Elena", want: RejectedDuplicate},
		{name: "case differs", existing: "Elena", proposed: "ELENA", want: RejectedDuplicate},
		{name: "candidate inside existing", existing: "Elena Frost", proposed: "Elena", want: RejectedContainment},
		{name: "existing inside candidate", existing: "Elena", proposed: "Lady Elena Frost", want: RejectedContainment},
		{name: "unrelated", existing: "Elena", proposed: "Mira", want: Accepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Merge([]Candidate{{Term: tt.existing, Definition: "known"}}, f.Batch(0))

			d := f.Screen(Candidate{Term: tt.proposed, Definition: "proposed"}, s)
			if d.Reason != tt.want {
				t.Fatalf("Screen(%q) = %v, want %v", tt.proposed, d.Reason, tt.want)
			}
			if d.Reason != Accepted && d.Conflict != tt.existing {
				t.Errorf("expected conflict %q, got %q", tt.existing, d.Conflict)
			}
		})
	}
}

func TestFilter_Invalid(t *testing.T) {
	f := NewFilter()
	s := New()
	for _, c := range []Candidate{
		{Term: "", Definition: "x"},
		{Term: "Mira", Definition: "   "},
		{Term: "[ミラ]", Definition: "x"},
		{Term: "Re:Zero", Definition: "title"},
	} {
		if d := f.Screen(c, s); d.Reason != RejectedInvalid {
			t.Errorf("Screen(%+v) = %v, want invalid", c, d.Reason)
		}
	}
}

func fifteenNames() []Candidate {
	names := []string{
		"Aldric", "Brenna", "Cassius", "Delphine", "Evander",
		"Fenwick", "Gwendolyn", "Hadrian", "Isolde", "Jorah",
		"Kestrel", "Lysander", "Morwenna", "Nerissa", "Oberon",
	}
	out := make([]Candidate, len(names))
	for i, n := range names {
		out[i] = Candidate{Term: n, Definition: fmt.Sprintf("character %d", i+1)}
	}
	return out
}

func TestMerge_PerChapterCap(t *testing.T) {
	f := NewFilter()
	cands := fifteenNames()

	tests := []struct {
		name   string
		strict bool
		want   int
	}{
		{name: "non-strict", strict: false, want: 10},
		{name: "strict", strict: true, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			accepted, decisions := s.Merge(cands, f.Batch(LimitFor(tt.strict)))
			if accepted != tt.want {
				t.Fatalf("accepted %d, want %d", accepted, tt.want)
			}
			if len(decisions) != len(cands) {
				t.Fatalf("expected a decision per candidate, got %d", len(decisions))
			}

			var want []string
			for _, c := range cands[:tt.want] {
				want = append(want, c.Term)
			}
			if diff := cmp.Diff(want, s.Terms()); diff != "" {
				t.Errorf("accepted terms mismatch (-want +got):\n%s", diff)
			}
			for _, d := range decisions[tt.want:] {
				if d.Reason != RejectedCap {
					t.Errorf("%q: expected cap rejection, got %v", d.Candidate.Term, d.Reason)
				}
			}
		})
	}
}

func TestMerge_CapCountsOnlyAdmitted(t *testing.T) {
	f := NewFilter()
	s := New()
	cands := []Candidate{
		{Term: "king", Definition: "title"},
		{Term: "Mira [ミラ]", Definition: "protagonist"},
	}
	accepted, _ := s.Merge(cands, f.Batch(StrictLimit))
	if accepted != 1 {
		t.Fatalf("expected stopword not to consume the strict slot, accepted %d", accepted)
	}
}

func TestMerge_WithinBatchDuplicates(t *testing.T) {
	f := NewFilter()
	s := New()
	accepted, decisions := s.Merge([]Candidate{
		{Term: "Mira [ミラ]", Definition: "protagonist"},
		{Term: "mira", Definition: "again"},
	}, f.Batch(DefaultLimit))
	if accepted != 1 {
		t.Fatalf("expected 1 accepted, got %d", accepted)
	}
	if decisions[1].Reason != RejectedDuplicate {
		t.Errorf("expected duplicate, got %v", decisions[1].Reason)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	f := NewFilter()
	s := New()
	s.Merge([]Candidate{{Term: "Mira [ミラ]", Definition: "protagonist"}}, f.Batch(0))
	before := s.Entries()

	for _, term := range []string{"Mira [ミラ]", "MIRA", "mira", "Mira [みら]"} {
		accepted, _ := s.Merge([]Candidate{{Term: term, Definition: "changed"}}, f.Batch(0))
		if accepted != 0 {
			t.Errorf("merging %q accepted a duplicate", term)
		}
	}
	if diff := cmp.Diff(before, s.Entries()); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
}

func TestMerge_FullStoreKeepOldest(t *testing.T) {
	f := NewFilter()
	s := New(WithMaxEntries(2))
	cands := fifteenNames()[:3]

	accepted, decisions := s.Merge(cands, f.Batch(0))
	if accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", accepted)
	}
	if decisions[2].Reason != RejectedFull {
		t.Errorf("expected glossary full, got %v", decisions[2].Reason)
	}
}

func TestMerge_EndToEndScenario(t *testing.T) {
	f := NewFilter()
	s := New()

	accepted, _ := s.Merge([]Candidate{
		{Term: "Mira [ミラ]", Definition: "protagonist"},
		{Term: "king", Definition: "generic title"},
	}, f.Batch(LimitFor(false)))
	if accepted != 1 {
		t.Fatalf("chapter 1: expected 1 accepted, got %d", accepted)
	}
	want := []Entry{{Term: "Mira [ミラ]", Definition: "protagonist"}}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("chapter 1 store mismatch (-want +got):\n%s", diff)
	}

	accepted, decisions := s.Merge([]Candidate{{Term: "Mira", Definition: "same protagonist"}}, f.Batch(LimitFor(false)))
	if accepted != 0 || decisions[0].Reason != RejectedDuplicate {
		t.Fatalf("chapter 2: expected duplicate rejection, got %d accepted, %v", accepted, decisions[0].Reason)
	}
	if s.Len() != 1 {
		t.Errorf("expected store size 1, got %d", s.Len())
	}
}
