//go:build pact
// +build pact

package pacttest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	ProviderName = "worktrack-api"
	ConsumerName = "triage-console"

	StateWorkItemsBaseline = "work items baseline"
	StateWorkItemExists    = "work item wi-pact exists"
	StateWorkItemMissing   = "no work item wi-ghost"
	StateCaseOpen          = "case case-pact is open"
)

const (
	ExistingWorkItemID = "wi-pact"
	MissingWorkItemID  = "wi-ghost"
	CreatedWorkItemID  = "wi-new"
	OpenCaseID         = "case-pact"

	ExampleUserID  = "pact-user"
	ExampleLens    = "sales"
	ExampleQueueID = "inbox"
)

// PactDir returns the workspace-level directory for generated pact files.
func PactDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "pacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact dir: %v", err)
	}
	return dir
}

// PactFile returns the canonical pact file path for the triage console consumer.
func PactFile(t testing.TB) string {
	t.Helper()
	return filepath.Join(PactDir(t), ConsumerName+"-"+ProviderName+".json")
}

// LogDir returns the log output directory for pact-go.
func LogDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "bin", "pact-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact log dir: %v", err)
	}
	return dir
}

// CreateWorkItemCommand is the command envelope the console submits.
func CreateWorkItemCommand() map[string]any {
	return map[string]any{
		"command_type": "CreateWorkItem",
		"aggregate_id": CreatedWorkItemID,
		"actor":        map[string]any{"type": "user", "id": ExampleUserID},
		"payload": map[string]any{
			"title":    "Call back about renewal",
			"user_id":  ExampleUserID,
			"lens":     ExampleLens,
			"queue_id": ExampleQueueID,
			"priority": "high",
		},
	}
}

// projectRoot walks up from this file to the workspace root.
func projectRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller for pact paths")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
