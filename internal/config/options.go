package config

import (
	"time"

	"rpmirror/internal/launch"
	"rpmirror/internal/template"
)

// LaunchOptions renders the launch templates and converts the configuration
// into launch options. Templates see .Project and .Time (now).
func (c Config) LaunchOptions(agentVersion string, now time.Time) (launch.Options, error) {
	data := map[string]interface{}{
		"Project": c.Project,
		"Time":    now,
	}
	rendered, err := template.New().RenderAll(map[string]string{
		"name":        c.Launch.Name,
		"description": c.Launch.Description,
	}, data)
	if err != nil {
		return launch.Options{}, err
	}

	name := rendered["name"]
	if name == "" {
		name = DefaultLaunchName
	}
	return launch.Options{
		Name:           name,
		Description:    rendered["description"],
		Mode:           c.Mode(),
		Attributes:     ParseAttributes(c.Launch.Attributes),
		Rerun:          c.Rerun,
		RerunOf:        c.RerunOf,
		SkippedAnIssue: c.SkippedAnIssue,
		AgentName:      AgentName,
		AgentVersion:   agentVersion,
	}, nil
}
