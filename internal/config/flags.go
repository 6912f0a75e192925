// Copyright 2025 Joseph Cumines

package config

import (
	"github.com/spf13/pflag"
)

// Flags are the command-line overrides. Only flags the user actually set
// are applied.
type Flags struct {
	fs         *pflag.FlagSet
	ConfigFile string
	values     Config
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	v := &f.values

	fs.StringVarP(&f.ConfigFile, "config", "c", "", "TOML config file (env "+EnvConfigFile+")")

	fs.StringVar(&v.ProviderAddr, "provider-addr", d.ProviderAddr, "gRPC address of the automation provider")
	fs.BoolVar(&v.ProviderTLS, "provider-tls", d.ProviderTLS, "use TLS to the automation provider")
	fs.StringVar(&v.ProviderCertFile, "provider-cert-file", d.ProviderCertFile, "CA certificate for provider TLS")

	fs.DurationVar(&v.RequestTimeout, "request-timeout", d.RequestTimeout, "upper bound on a single provider call")
	fs.DurationVar(&v.FindTimeout, "find-timeout", d.FindTimeout, "default element discovery timeout")
	fs.DurationVar(&v.ExistsTimeout, "exists-timeout", d.ExistsTimeout, "element_exists timeout")
	fs.DurationVar(&v.WaitTimeout, "wait-timeout", d.WaitTimeout, "default wait_for_element timeout")
	fs.DurationVar(&v.PollInterval, "poll-interval", d.PollInterval, "delay between discovery attempts")
	fs.DurationVar(&v.LaunchTimeout, "launch-timeout", d.LaunchTimeout, "bound on waiting for a launched application")

	fs.IntVar(&v.ScreenshotMaxDimension, "screenshot-max-dimension", d.ScreenshotMaxDimension, "downscale captures larger than this (0 disables)")

	fs.StringVar(&v.AuditLog, "audit-log", d.AuditLog, "audit log file (disabled when empty)")
	fs.BoolVar(&v.AuditRedactInput, "audit-redact-input", d.AuditRedactInput, "redact typed text in the audit log")
	fs.StringVar(&v.MetricsAddr, "metrics-addr", d.MetricsAddr, "listen address for /health and /metrics (disabled when empty)")

	fs.StringVar(&v.LogLevel, "log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&v.Debug, "debug", d.Debug, "debug logging with caller reporting")

	return f
}

// Apply copies every flag that was set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	v := &f.values
	apply := func(name string, set func()) {
		if f.fs.Changed(name) {
			set()
		}
	}

	apply("provider-addr", func() { cfg.ProviderAddr = v.ProviderAddr })
	apply("provider-tls", func() { cfg.ProviderTLS = v.ProviderTLS })
	apply("provider-cert-file", func() { cfg.ProviderCertFile = v.ProviderCertFile })
	apply("request-timeout", func() { cfg.RequestTimeout = v.RequestTimeout })
	apply("find-timeout", func() { cfg.FindTimeout = v.FindTimeout })
	apply("exists-timeout", func() { cfg.ExistsTimeout = v.ExistsTimeout })
	apply("wait-timeout", func() { cfg.WaitTimeout = v.WaitTimeout })
	apply("poll-interval", func() { cfg.PollInterval = v.PollInterval })
	apply("launch-timeout", func() { cfg.LaunchTimeout = v.LaunchTimeout })
	apply("screenshot-max-dimension", func() { cfg.ScreenshotMaxDimension = v.ScreenshotMaxDimension })
	apply("audit-log", func() { cfg.AuditLog = v.AuditLog })
	apply("audit-redact-input", func() { cfg.AuditRedactInput = v.AuditRedactInput })
	apply("metrics-addr", func() { cfg.MetricsAddr = v.MetricsAddr })
	apply("log-level", func() { cfg.LogLevel = v.LogLevel })
	apply("debug", func() { cfg.Debug = v.Debug })
}
