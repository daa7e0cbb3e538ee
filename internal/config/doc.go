// Package config loads the reporting configuration of rpmirror.
//
// Configuration is read from rpmirror.yaml in a single directory (the
// current directory by default, or the one given with --config). Missing
// files fall back to defaults. The document is checked against an embedded
// JSON schema before it is decoded, and RP_* environment variables override
// file values afterwards:
//
//	RP_ENDPOINT               endpoint
//	RP_PROJECT                project
//	RP_API_KEY                apiKey
//	RP_LAUNCH                 launch.name
//	RP_LAUNCH_DESCRIPTION     launch.description
//	RP_MODE                   launch.mode
//	RP_ATTRIBUTES             launch.attributes
//	RP_RERUN                  rerun
//	RP_RERUN_OF               rerunOf
//	RP_REPORT_DISABLED_TESTS  reportDisabledTests
//	RP_CALLBACK_REPORTING     callbackReportingEnabled
//	RP_SKIPPED_AN_ISSUE       skippedAnIssue
//	RP_LOG_OUTPUT             logOutput
//
// Example rpmirror.yaml:
//
//	endpoint: https://reports.example.com
//	project: payments
//	launch:
//	  name: '{{ .Project }} {{ env "CI_BRANCH" | default "local" }}'
//	  mode: DEFAULT
//	  attributes: "team:payments;nightly"
//	reportDisabledTests: true
//
// reportDisabledTests controls skips of tests that go test never ran: they
// are reported as SKIPPED steps when set and dropped otherwise.
//
// The launch name and description are text templates with the sprig
// function library. They see .Project and .Time.
package config
