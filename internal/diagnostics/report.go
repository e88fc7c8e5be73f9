package diagnostics

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/battmon/internal/errors"
	"gopkg.in/yaml.v3"
)

const ErrEncodeReport = errors.ErrorCode("diagnostics_encode_failed")

// String renders the report for a terminal or a debug text file.
func (r Report) String() string {
	var sb strings.Builder

	sb.WriteString("=== Battery access diagnostics ===\n")
	fmt.Fprintf(&sb, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&sb, "Capability: %s", r.Capability)
	if r.CapabilityDetail != "" {
		fmt.Fprintf(&sb, " (%s)", r.CapabilityDetail)
	}
	sb.WriteString("\n")

	if r.SELinux.Mode != "" {
		fmt.Fprintf(&sb, "SELinux mode: %s\n", r.SELinux.Mode)
		fmt.Fprintf(&sb, "Process context: %s\n", r.SELinux.Context)
	}

	sb.WriteString("\nPath access:\n")
	if len(r.Paths) == 0 {
		sb.WriteString("  (no attempts recorded)\n")
	}
	for _, p := range r.Paths {
		mark := "OK  "
		if !p.OK() {
			mark = "FAIL"
		}
		fmt.Fprintf(&sb, "  [%s] %s  ok=%d fail=%d last=%s avg=%s",
			mark, p.Path, p.Successes, p.Failures, p.LastOutcome, p.MeanLatency)
		if p.Detail != "" && !p.OK() {
			fmt.Fprintf(&sb, "  (%s)", p.Detail)
		}
		sb.WriteString("\n")
	}

	if len(r.Unlisted) > 0 {
		sb.WriteString("\nUnlisted candidate nodes:\n")
		for _, p := range r.Unlisted {
			fmt.Fprintf(&sb, "  - %s\n", p)
		}
	}

	if len(r.Requested) > 0 {
		sb.WriteString("\nDiagnostics requested for:\n")
		for _, p := range r.Requested {
			fmt.Fprintf(&sb, "  - %s\n", p)
		}
	}

	fmt.Fprintf(&sb, "\nAVC denials: %d\n", len(r.Denials))
	for _, d := range r.Denials {
		fmt.Fprintf(&sb, "  - %s\n", d.Summary)
	}
	if r.AuditError != "" {
		fmt.Fprintf(&sb, "  audit log unavailable: %s\n", r.AuditError)
	}

	if r.Policy != "" {
		sb.WriteString("\nPolicy suggestion:\n")
		sb.WriteString(r.Policy)
	}

	return sb.String()
}

func (r Report) YAML() ([]byte, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeReport, err)
	}

	return out, nil
}
