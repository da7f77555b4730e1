package resolver

import (
	"bytes"
	"fmt"
)

// EndpointRef identifies the endpoint an error pertains to, for diagnostic
// display — mirrors the teacher's a2vs()/noVersionError pattern of attaching
// project identity to failures rather than returning bare strings.
type EndpointRef struct {
	Name   string
	Source string
	Target string
}

func refFor(e *Endpoint) EndpointRef {
	return EndpointRef{Name: e.Name, Source: e.Source, Target: e.Target}
}

// WorkingError is returned when Resolve is invoked while a previous call on
// the same Manager is still in progress. Code: EWORKING.
type WorkingError struct{}

func (WorkingError) Error() string { return "EWORKING: a resolve is already in progress" }

// ErrWorking is the sentinel returned for reentrant Resolve calls.
var ErrWorking error = WorkingError{}

// FetchError wraps a transport failure from Repository.Fetch, annotated
// with the endpoint that failed, per spec.md §7.
type FetchError struct {
	Endpoint EndpointRef
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (%s): %s", e.Endpoint.Name, e.Endpoint.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Candidate is the diagnostic view of one contender in a conflict, returned
// on ConflictError so callers can render a picker.
type Candidate struct {
	Endpoint *Endpoint
	Target   string
}

// ConflictError is raised when dissect cannot elect a single revision for an
// RID, interactive mode is off, and no resolution or force-latest applies.
// Code: ECONFLICT.
type ConflictError struct {
	RID   RID
	Picks []Candidate
}

func (e *ConflictError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ECONFLICT: unresolvable conflict for %q among %d candidates:", e.RID, len(e.Picks))
	for i, p := range e.Picks {
		fmt.Fprintf(&buf, "\n  %d) %s", i+1, p.Target)
	}
	return buf.String()
}

// FirstFailure is the error recorded and returned when the fail-fast policy
// (§4.3.2) short-circuits dissect after the first transport error.
type FirstFailure struct {
	RID RID
	Err error
}

func (e *FirstFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.RID, e.Err)
}

func (e *FirstFailure) Unwrap() error { return e.Err }
