package formatting

import (
	"time"

	"rpmirror/internal/backend"
	"rpmirror/internal/correlation"
)

// ItemRow is one reported item of a run.
type ItemRow struct {
	Name     string           `json:"name" yaml:"name"`
	Type     backend.ItemType `json:"type" yaml:"type"`
	Status   backend.Status   `json:"status,omitempty" yaml:"status,omitempty"`
	Depth    int              `json:"depth" yaml:"depth"`
	Duration time.Duration    `json:"duration" yaml:"duration"`
}

// Counts holds the number of test steps per status. Suites and hooks are
// not counted.
type Counts struct {
	Total      int `json:"total" yaml:"total"`
	Passed     int `json:"passed" yaml:"passed"`
	Failed     int `json:"failed" yaml:"failed"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Unfinished int `json:"unfinished" yaml:"unfinished"`
}

// Report summarizes a run.
type Report struct {
	Launch string    `json:"launch" yaml:"launch"`
	Items  []ItemRow `json:"items" yaml:"items"`
	Counts Counts    `json:"counts" yaml:"counts"`
}

// NewReport builds a report from item tree leaves in start order.
func NewReport(launch string, leaves []correlation.Leaf) Report {
	r := Report{Launch: launch, Items: make([]ItemRow, 0, len(leaves))}
	depth := make(map[string]int, len(leaves))

	for _, l := range leaves {
		d := 0
		if pd, ok := depth[l.ParentKey]; ok && l.ParentKey != "" {
			d = pd + 1
		}
		depth[l.Key] = d

		row := ItemRow{Name: l.Name, Type: l.Type, Depth: d}
		if l.Finished() {
			row.Status = l.Status
			row.Duration = l.EndTime.Sub(l.StartTime)
		}
		r.Items = append(r.Items, row)

		if l.Type != backend.ItemTypeStep {
			continue
		}
		r.Counts.Total++
		switch {
		case !l.Finished():
			r.Counts.Unfinished++
		case l.Status == backend.StatusPassed:
			r.Counts.Passed++
		case l.Status == backend.StatusFailed:
			r.Counts.Failed++
		case l.Status == backend.StatusSkipped:
			r.Counts.Skipped++
		}
	}
	return r
}
