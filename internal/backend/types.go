package backend

import (
	"context"
	"time"
)

// Status is the terminal status of a reported item.
type Status string

const (
	// StatusPassed indicates the item finished successfully
	StatusPassed Status = "PASSED"
	// StatusFailed indicates the item or one of its descendants failed
	StatusFailed Status = "FAILED"
	// StatusSkipped indicates the item was not executed
	StatusSkipped Status = "SKIPPED"
)

// ItemType is the reported type of a test item.
type ItemType string

const (
	ItemTypeSuite        ItemType = "SUITE"
	ItemTypeStep         ItemType = "STEP"
	ItemTypeBeforeClass  ItemType = "BEFORE_CLASS"
	ItemTypeBeforeMethod ItemType = "BEFORE_METHOD"
	ItemTypeAfterClass   ItemType = "AFTER_CLASS"
	ItemTypeAfterMethod  ItemType = "AFTER_METHOD"
)

// LaunchMode selects where the launch is shown on the backend.
type LaunchMode string

const (
	LaunchModeDefault LaunchMode = "DEFAULT"
	LaunchModeDebug   LaunchMode = "DEBUG"
)

// LogLevel is the level of a log entry attached to an item.
type LogLevel string

const (
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
)

// Attribute is a (key, value) pair attached to a launch or an item.
// Tags are attributes without a key.
type Attribute struct {
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
	Value  string `json:"value" yaml:"value"`
	System bool   `json:"system,omitempty" yaml:"-"`
}

// StartLaunchRQ starts a launch.
type StartLaunchRQ struct {
	UUID        string      `json:"uuid,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Mode        LaunchMode  `json:"mode,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	StartTime   time.Time   `json:"startTime"`
	Rerun       bool        `json:"rerun,omitempty"`
	RerunOf     string      `json:"rerunOf,omitempty"`
}

// FinishLaunchRQ finishes a launch.
type FinishLaunchRQ struct {
	EndTime time.Time `json:"endTime"`
}

// StartItemRQ starts a test item.
type StartItemRQ struct {
	UUID         string      `json:"uuid,omitempty"`
	LaunchUUID   string      `json:"launchUuid,omitempty"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	UniqueID     string      `json:"uniqueId,omitempty"`
	Type         ItemType    `json:"type"`
	Retry        bool        `json:"retry,omitempty"`
	CodeRef      string      `json:"codeRef,omitempty"`
	TestCaseID   string      `json:"testCaseId,omitempty"`
	TestCaseHash int32       `json:"testCaseHash,omitempty"`
	Attributes   []Attribute `json:"attributes,omitempty"`
	StartTime    time.Time   `json:"startTime"`
}

// FinishItemRQ finishes a test item.
type FinishItemRQ struct {
	LaunchUUID string    `json:"launchUuid,omitempty"`
	Status     Status    `json:"status"`
	EndTime    time.Time `json:"endTime"`
}

// LogRQ attaches a log entry to an item.
type LogRQ struct {
	LaunchUUID string    `json:"launchUuid,omitempty"`
	ItemUUID   string    `json:"itemUuid,omitempty"`
	Level      LogLevel  `json:"level"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Client is the reporting backend contract. Start calls return a handle
// immediately; the remote id is resolved asynchronously. Implementations
// are responsible for transport, ordering and failure handling.
type Client interface {
	// StartLaunch starts a new launch.
	StartLaunch(ctx context.Context, rq StartLaunchRQ) *Handle
	// StartItem starts an item under parent, or as a launch root when parent is nil.
	StartItem(ctx context.Context, launch, parent *Handle, rq StartItemRQ) *Handle
	// FinishItem finishes a started item.
	FinishItem(ctx context.Context, launch, item *Handle, rq FinishItemRQ) *Completion
	// FinishLaunch finishes a launch after all of its pending operations.
	FinishLaunch(ctx context.Context, launch *Handle, rq FinishLaunchRQ) *Completion
	// EmitLog attaches a log entry to an item.
	EmitLog(ctx context.Context, launch, item *Handle, rq LogRQ)
}
