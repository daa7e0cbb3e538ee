package config

import (
	"rpmirror/internal/backend"
)

// Config is the top-level configuration structure for rpmirror.
type Config struct {
	Endpoint string       `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // Base URL of the reporting service
	Project  string       `yaml:"project,omitempty" json:"project,omitempty"`   // Project receiving the launches
	APIKey   string       `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`     // Bearer token
	Launch   LaunchConfig `yaml:"launch" json:"launch"`

	Rerun   bool   `yaml:"rerun,omitempty" json:"rerun,omitempty"`
	RerunOf string `yaml:"rerunOf,omitempty" json:"rerunOf,omitempty"`

	ReportDisabledTests      bool `yaml:"reportDisabledTests" json:"reportDisabledTests"`
	CallbackReportingEnabled bool `yaml:"callbackReportingEnabled" json:"callbackReportingEnabled"`
	SkippedAnIssue           bool `yaml:"skippedAnIssue" json:"skippedAnIssue"`
	LogOutput                bool `yaml:"logOutput" json:"logOutput"`
}

// LaunchConfig describes the launches started by a run.
type LaunchConfig struct {
	Name        string             `yaml:"name,omitempty" json:"name,omitempty"`               // Template
	Description string             `yaml:"description,omitempty" json:"description,omitempty"` // Template
	Mode        backend.LaunchMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	Attributes  string             `yaml:"attributes,omitempty" json:"attributes,omitempty"` // key:value;tag
}
