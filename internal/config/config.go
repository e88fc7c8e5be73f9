package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/battmon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "BATTMON"
	DefaultConfigFile = "/etc/battmon.toml"

	DefaultLogLevel         = string(LogLevelWarning)
	DefaultSysfsRoot        = "/sys"
	DefaultProbeCommand     = "su -c id"
	DefaultProbeTimeout     = 5 * time.Second
	DefaultPrivilegedDomain = "priv_app"
	DefaultAuditCommand     = "dmesg"
	DefaultJournalDB        = "/var/lib/battmon/journal.db"
)

type Config struct {
	LogLevel         string        `mapstructure:"log_level"`
	SysfsRoot        string        `mapstructure:"sysfs_root"`
	Profile          string        `mapstructure:"profile"`
	Capability       string        `mapstructure:"capability"`
	ProbeCommand     string        `mapstructure:"probe_command"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	PrivilegedDomain string        `mapstructure:"privileged_domain"`
	PackageName      string        `mapstructure:"package_name"`
	AuditSource      string        `mapstructure:"audit_source"`
	AuditCommand     string        `mapstructure:"audit_command"`
	PlatformProvider string        `mapstructure:"platform_provider"`
	Journal          bool          `mapstructure:"journal"`
	JournalDB        string        `mapstructure:"journal_db"`
	Output           string        `mapstructure:"output"`

	// Args holds the positional arguments left after flag parsing.
	Args []string `mapstructure:"-"`
	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

var defaults = map[string]any{
	"log_level":         DefaultLogLevel,
	"sysfs_root":        DefaultSysfsRoot,
	"profile":           "",
	"capability":        string(CapabilityProbe),
	"probe_command":     DefaultProbeCommand,
	"probe_timeout":     DefaultProbeTimeout,
	"privileged_domain": DefaultPrivilegedDomain,
	"package_name":      "",
	"audit_source":      AuditFromCommand,
	"audit_command":     DefaultAuditCommand,
	"platform_provider": string(ProviderAuto),
	"journal":           false,
	"journal_db":        DefaultJournalDB,
	"output":            string(OutputText),
}

// NewFlagSet declares every flag. Flag names are the config keys with
// dashes.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Configuration file (default "+DefaultConfigFile+")")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.String("sysfs-root", DefaultSysfsRoot, "Root of the sysfs tree")
	fs.String("profile", "", "Device profile (TOML)")
	fs.String("capability", string(CapabilityProbe), "Elevated access: probe, granted, denied")
	fs.String("probe-command", DefaultProbeCommand, "Command used to probe for root")
	fs.Duration("probe-timeout", DefaultProbeTimeout, "Capability probe timeout")
	fs.String("privileged-domain", DefaultPrivilegedDomain, "SELinux domain treated as privileged")
	fs.String("package-name", "", "Owning package name used to filter AVC denials")
	fs.String("audit-source", AuditFromCommand, "Audit text: command, - (stdin) or a file path")
	fs.String("audit-command", DefaultAuditCommand, "Command that prints kernel audit records")
	fs.String("platform-provider", string(ProviderAuto), "Fallback battery service: auto, upower, termux, none")
	fs.Bool("journal", false, "Record access attempts and denials to the journal database")
	fs.String("journal-db", DefaultJournalDB, "Journal database path")
	fs.StringP("output", "o", string(OutputText), "Output format: text, json, yaml")

	return fs
}

// Load merges defaults, the config file, BATTMON_* environment variables
// and flags parsed from args, in increasing precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := NewFlagSet("battmon")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	file, err := configFile(fs)
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.Args = fs.Args()
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configFile resolves --config, then BATTMON_CONFIG, then the default
// path if it exists. An explicitly named file must exist.
func configFile(fs *pflag.FlagSet) (string, error) {
	if path, _ := fs.GetString("config"); path != "" {
		return path, nil
	}
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path, nil
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile, nil
	}

	return "", nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.LogLevel == "warn" {
		c.LogLevel = string(LogLevelWarning)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.ProbeTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, c.ProbeTimeout.String())
	}
	if !PlatformProvider(c.PlatformProvider).IsValid() {
		return errFactory.WithData(errors.ErrInvalidProvider, c.PlatformProvider)
	}
	if !Output(c.Output).IsValid() {
		return errFactory.WithData(errors.ErrInvalidOutput, c.Output)
	}
	if !CapabilityMode(c.Capability).IsValid() {
		return errFactory.WithData(errors.ErrInvalidConfig, "capability="+c.Capability)
	}
	if c.SysfsRoot == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "sysfs_root")
	}
	if c.Journal && c.JournalDB == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "journal_db")
	}
	if c.AuditSource == AuditFromCommand && strings.TrimSpace(c.AuditCommand) == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "audit_command")
	}

	return nil
}
