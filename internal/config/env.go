package config

import (
	"fmt"
	"strconv"

	"rpmirror/internal/backend"
	"rpmirror/pkg/logging"
)

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key    string
	str    func(c *Config) *string
	flag   func(c *Config) *bool
	secret bool
}

var envBindings = []envBinding{
	{key: "RP_ENDPOINT", str: func(c *Config) *string { return &c.Endpoint }},
	{key: "RP_PROJECT", str: func(c *Config) *string { return &c.Project }},
	{key: "RP_API_KEY", str: func(c *Config) *string { return &c.APIKey }, secret: true},
	{key: "RP_LAUNCH", str: func(c *Config) *string { return &c.Launch.Name }},
	{key: "RP_LAUNCH_DESCRIPTION", str: func(c *Config) *string { return &c.Launch.Description }},
	{key: "RP_MODE", str: func(c *Config) *string { return (*string)(&c.Launch.Mode) }},
	{key: "RP_ATTRIBUTES", str: func(c *Config) *string { return &c.Launch.Attributes }},
	{key: "RP_RERUN", flag: func(c *Config) *bool { return &c.Rerun }},
	{key: "RP_RERUN_OF", str: func(c *Config) *string { return &c.RerunOf }},
	{key: "RP_REPORT_DISABLED_TESTS", flag: func(c *Config) *bool { return &c.ReportDisabledTests }},
	{key: "RP_CALLBACK_REPORTING", flag: func(c *Config) *bool { return &c.CallbackReportingEnabled }},
	{key: "RP_SKIPPED_AN_ISSUE", flag: func(c *Config) *bool { return &c.SkippedAnIssue }},
	{key: "RP_LOG_OUTPUT", flag: func(c *Config) *bool { return &c.LogOutput }},
}

// ApplyEnv overrides cfg with the RP_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs ValidationErrors
	for _, b := range envBindings {
		value, ok := lookup(b.key)
		if !ok {
			continue
		}
		if b.flag != nil {
			v, err := strconv.ParseBool(value)
			if err != nil {
				errs.Add(b.key, "must be a boolean", value)
				continue
			}
			*b.flag(cfg) = v
		} else {
			*b.str(cfg) = value
		}
		if b.secret {
			value = "***"
		}
		logging.Debug("Config", "Applied %s=%s", b.key, value)
	}
	if errs.HasErrors() {
		return fmt.Errorf("invalid environment: %w", errs)
	}
	return nil
}

// Mode returns the configured launch mode, defaulting to DEFAULT.
func (c Config) Mode() backend.LaunchMode {
	if c.Launch.Mode == "" {
		return backend.LaunchModeDefault
	}
	return c.Launch.Mode
}
