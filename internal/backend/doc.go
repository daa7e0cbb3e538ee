// Package backend defines the contract between the lifecycle observer and the
// reporting service.
//
// The observer never talks to the network itself. It calls a Client, which
// returns Handles (futures of remote ids) from start calls and Completions
// from finish calls without waiting for the backend to answer. A Handle can
// be passed as the parent of another start call before it is resolved; the
// Client orders the requests.
//
// Two implementations exist:
//
//   - Recorder: in memory, resolves immediately and records the call sequence.
//     Used for dry runs and tests.
//   - rest.Client (subpackage rest): the HTTP client for the reporting API.
//
// The request types mirror the reporting API payloads.
package backend
