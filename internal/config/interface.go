package config

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// PlatformProvider selects the battery-status service used as fallback.
type PlatformProvider string

const (
	ProviderAuto   PlatformProvider = "auto"
	ProviderUPower PlatformProvider = "upower"
	ProviderTermux PlatformProvider = "termux"
	ProviderNone   PlatformProvider = "none"
)

func (p PlatformProvider) IsValid() bool {
	switch p {
	case ProviderAuto, ProviderUPower, ProviderTermux, ProviderNone:
		return true
	default:
		return false
	}
}

// Output selects how commands print their results.
type Output string

const (
	OutputText Output = "text"
	OutputJSON Output = "json"
	OutputYAML Output = "yaml"
)

func (o Output) IsValid() bool {
	switch o {
	case OutputText, OutputJSON, OutputYAML:
		return true
	default:
		return false
	}
}

// CapabilityMode says whether elevated access is probed or supplied by
// the host.
type CapabilityMode string

const (
	CapabilityProbe   CapabilityMode = "probe"
	CapabilityGranted CapabilityMode = "granted"
	CapabilityDenied  CapabilityMode = "denied"
)

func (c CapabilityMode) IsValid() bool {
	switch c {
	case CapabilityProbe, CapabilityGranted, CapabilityDenied:
		return true
	default:
		return false
	}
}

// AuditFromCommand and AuditFromStdin are the non-path values of
// audit_source; anything else is a file path.
const (
	AuditFromCommand = "command"
	AuditFromStdin   = "-"
)
