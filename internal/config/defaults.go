package config

import (
	"rpmirror/internal/backend"
)

const (
	// DefaultLaunchName is used when no launch name is configured
	DefaultLaunchName = "rpmirror launch"

	// AgentName is reported in the agent system attribute
	AgentName = "rpmirror"
)

// GetDefaultConfig returns the default configuration
func GetDefaultConfig() Config {
	return Config{
		Launch: LaunchConfig{
			Name: DefaultLaunchName,
			Mode: backend.LaunchModeDefault,
		},
		SkippedAnIssue: true,
	}
}
