package category

import (
	"golang.org/x/text/cases"
)

// Uncategorized is the label for blank and unmatched categories.
const Uncategorized = "Uncategorized"

// ProposedMarker prefixes the audit note that records a label which was
// coerced to Uncategorized or suggested as a new category.
const ProposedMarker = "proposedCategory:"

// Spec is an immutable snapshot of the category taxonomy.
type Spec struct {
	path      string
	canonical []string            // declaration order, used for case-insensitive matching
	known     map[string]struct{} // exact canonical labels
	aliases   map[string]string   // folded alias -> target label
}

// NewSpec builds a Spec. Alias keys are matched case-insensitively; alias
// targets are kept verbatim and only honoured when they are canonical.
func NewSpec(canonical []string, aliases map[string]string) *Spec {
	s := &Spec{
		canonical: make([]string, 0, len(canonical)),
		known:     make(map[string]struct{}, len(canonical)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for _, c := range canonical {
		if _, dup := s.known[c]; dup {
			continue
		}
		s.canonical = append(s.canonical, c)
		s.known[c] = struct{}{}
	}
	for k, v := range aliases {
		s.aliases[fold(k)] = v
	}
	return s
}

// Path returns the file the spec was loaded from, if any.
func (s *Spec) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// IsCanonical reports whether label is exactly a canonical category. A nil
// Spec has no categories.
func (s *Spec) IsCanonical(label string) bool {
	if s == nil {
		return false
	}
	_, ok := s.known[label]
	return ok
}

// Canonical returns a copy of the canonical labels in declaration order.
func (s *Spec) Canonical() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.canonical))
	copy(out, s.canonical)
	return out
}

// aliasTarget returns the target of a folded alias key.
func (s *Spec) aliasTarget(folded string) (string, bool) {
	if s == nil {
		return "", false
	}
	target, ok := s.aliases[folded]
	return target, ok
}

// Result is the outcome of normalizing one label.
type Result struct {
	Category string `json:"category"`
	Changed  bool   `json:"changed"`
	Unknown  bool   `json:"unknown"`
	Original string `json:"original"`
}

func fold(s string) string {
	return cases.Fold().String(s)
}
