package glossary

import "strings"

// genericIndicators mark definitions of terms that are too ordinary to be
// worth a glossary line.
var genericIndicators = []string{
	"a type of", "a kind of", "general term", "common", "ordinary",
	"simple", "basic", "regular", "normal", "standard", "typical",
	"generic", "minor character", "side character", "background",
	"mentioned briefly", "appears once",
}

// Removal describes an entry dropped by Clean.
type Removal struct {
	Entry  Entry
	Reason string
}

// Clean removes stopword entries and entries whose definition reads as
// generic. Terms carrying an origin-language bracket are always kept. The
// store is modified in place; the removals are returned in store order.
func (f *Filter) Clean(s *Store) []Removal {
	var removed []Removal
	kept := s.entries[:0:0]
	keptBases := s.bases[:0:0]
	for i, e := range s.entries {
		reason := f.cleanReason(e)
		if reason == "" || HasOrigin(e.Term) {
			kept = append(kept, e)
			keptBases = append(keptBases, s.bases[i])
			continue
		}
		removed = append(removed, Removal{Entry: e, Reason: reason})
	}
	s.entries = kept
	s.bases = keptBases
	return removed
}

func (f *Filter) cleanReason(e Entry) string {
	if f.IsStopword(e.Term) {
		return "common term"
	}
	def := strings.ToLower(e.Definition)
	for _, ind := range genericIndicators {
		if strings.Contains(def, ind) {
			return "generic description"
		}
	}
	return ""
}
