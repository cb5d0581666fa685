package livesync

// Test helpers shared with the external livesync_test package, which exists
// because fetcher_test.go imports internal/server (which imports livesync).
type ManualSubscriber = manualSubscriber

var WaitState = waitState
