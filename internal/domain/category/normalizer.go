package category

import "strings"

// Normalize maps a free-text label onto the taxonomy. First hit wins:
// exact canonical, case-insensitive alias with a canonical target,
// case-insensitive canonical, otherwise Uncategorized and unknown. A nil
// spec is an empty taxonomy; use Apply for passthrough.
func Normalize(raw string, spec *Spec) Result {
	label := strings.TrimSpace(raw)
	if label == "" {
		return Result{Category: Uncategorized, Changed: true, Unknown: false, Original: label}
	}

	if spec.IsCanonical(label) {
		return Result{Category: label, Original: label}
	}

	folded := fold(label)
	if target, ok := spec.aliasTarget(folded); ok && spec.IsCanonical(target) {
		return Result{Category: target, Changed: true, Original: label}
	}

	for _, c := range spec.Canonical() {
		if fold(c) == folded {
			return Result{Category: c, Changed: true, Original: label}
		}
	}

	return Result{Category: Uncategorized, Changed: true, Unknown: true, Original: label}
}

// Apply normalizes raw against spec, or passes it through verbatim when no
// taxonomy is loaded. Passthrough never reports Unknown.
func Apply(raw string, spec *Spec) Result {
	if spec != nil {
		return Normalize(raw, spec)
	}
	if raw == "" {
		return Result{Category: Uncategorized, Original: raw}
	}
	return Result{Category: raw, Original: raw}
}
