package avc

import (
	"fmt"
	"strings"
)

const policyHeader = ";; Generated policy suggestions\n;; Add to vendor_sepolicy.cil\n\n"

// DefaultDomain is the privileged-app SELinux domain.
const DefaultDomain = "priv_app"

// Analyzer filters denials down to the ones that concern this process.
type Analyzer struct {
	Domain  string
	Package string
}

// Relevant reports whether d mentions the privileged domain in either
// context, or the owning package anywhere. An Analyzer with neither set
// accepts everything.
func (a Analyzer) Relevant(d Denial) bool {
	if a.Domain == "" && a.Package == "" {
		return true
	}

	if a.Domain != "" {
		if strings.Contains(d.SourceContext, a.Domain) || strings.Contains(d.TargetContext, a.Domain) {
			return true
		}
	}

	if a.Package != "" {
		return strings.Contains(d.SourceContext, a.Package) ||
			strings.Contains(d.TargetContext, a.Package) ||
			strings.Contains(d.RawLine, a.Package)
	}

	return false
}

func (a Analyzer) Filter(denials []Denial) []Denial {
	var out []Denial
	for _, d := range denials {
		if a.Relevant(d) {
			out = append(out, d)
		}
	}

	return out
}

// ContextType returns the third colon-delimited field (user:role:type:level),
// or "" when the context has fewer fields.
func ContextType(context string) string {
	parts := strings.Split(context, ":")
	if len(parts) < 3 {
		return ""
	}

	return parts[2]
}

// Rule renders the allow-rule for d, or false when a required field is
// missing.
func Rule(d Denial) (string, bool) {
	src := ContextType(d.SourceContext)
	tgt := ContextType(d.TargetContext)
	perm := strings.Join(d.Permissions(), " ")

	if src == "" || tgt == "" || d.TargetClass == "" || perm == "" {
		return "", false
	}

	return fmt.Sprintf("(allow %s %s (%s (%s)))", src, tgt, d.TargetClass, perm), true
}

// Suggest emits one allow-rule per usable denial, deduplicated, in
// first-seen order, newline separated.
func Suggest(denials []Denial) string {
	seen := make(map[string]struct{}, len(denials))
	rules := make([]string, 0, len(denials))

	for _, d := range denials {
		rule, ok := Rule(d)
		if !ok {
			continue
		}
		if _, dup := seen[rule]; dup {
			continue
		}
		seen[rule] = struct{}{}
		rules = append(rules, rule)
	}

	return strings.Join(rules, "\n")
}

// RenderPolicy wraps Suggest's output in a CIL comment header suitable for
// pasting into a vendor policy file.
func RenderPolicy(denials []Denial) string {
	rules := Suggest(denials)
	if rules == "" {
		return ";; No denials found\n"
	}

	return policyHeader + rules + "\n"
}

// Summary is a one-line description used in reports.
func (d Denial) Summary() string {
	perm := d.Permission
	if perm == "" {
		perm = "?"
	}

	return fmt.Sprintf("denied { %s } %s -> %s (class=%s)",
		perm, typeOrContext(d.SourceContext), typeOrContext(d.TargetContext), d.TargetClass)
}

func typeOrContext(context string) string {
	if t := ContextType(context); t != "" {
		return t
	}

	return context
}
