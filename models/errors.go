package models

import (
	"fmt"
	"strings"
)

// Stage identifies where in the fetch pipeline a failure happened.
type Stage string

const (
	StagePostList        Stage = "post-list"
	StageFieldExtraction Stage = "field-extraction"
	StageMetric          Stage = "metric"
)

// CredentialMissingError means the caller did not supply enough input to run
// an analysis. It is not a system fault.
type CredentialMissingError struct {
	Fields []string
}

func (e *CredentialMissingError) Error() string {
	return "missing input: " + strings.Join(e.Fields, ", ")
}

// APIError is the error object the Graph API returns under "error".
type APIError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	IsTransient bool   `json:"is_transient"`
	FBTraceID   string `json:"fbtrace_id"`
}

func (e *APIError) String() string {
	return fmt.Sprintf("%s (type=%s code=%d subcode=%d)", e.Message, e.Type, e.Code, e.Subcode)
}

// FetchError is a network, HTTP, or response-shape failure while talking to
// the Graph API.
type FetchError struct {
	Stage      Stage
	PostID     string
	StatusCode int
	API        *APIError
	Err        error

	// Network is set when the request was sent but no complete response came back.
	Network bool
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s", e.Stage)
	if e.PostID != "" {
		fmt.Fprintf(&b, " [post %s]", e.PostID)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.API != nil {
		fmt.Fprintf(&b, ": %s", e.API)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed.
func (e *FetchError) Transient() bool {
	if e.API != nil && e.API.IsTransient {
		return true
	}
	switch {
	case e.StatusCode == 429, e.StatusCode >= 500:
		return true
	case e.Network:
		return true
	}
	return false
}

// MergeError means a post had no metric value after fetching.
type MergeError struct {
	PostID string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: no metric for post %s", e.PostID)
}

// NormalizationSkipped records a timestamp that did not carry the expected
// literal UTC offset and was passed through unchanged.
type NormalizationSkipped struct {
	Row       int
	Timestamp string
}

func (e *NormalizationSkipped) Error() string {
	return fmt.Sprintf("normalize: row %d timestamp %q has no +0000 suffix, left unchanged", e.Row, e.Timestamp)
}
