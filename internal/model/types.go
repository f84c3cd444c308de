package model

import (
	"fmt"
	"strings"
	"time"
)

// Backend is the compute target a Rater runs on.
type Backend string

const (
	BackendCPU Backend = "cpu"
	BackendGPU Backend = "gpu"
)

// Backends lists every backend, in startup order.
var Backends = []Backend{BackendCPU, BackendGPU}

// ParseBackend parses "cpu" or "gpu".
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendCPU, BackendGPU:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// Result is the outcome of one successful inference.
type Result struct {
	// ID identifies the run in logs.
	ID      string        `json:"id"`
	Score   float32       `json:"score"`
	Backend Backend       `json:"backend"`
	Elapsed time.Duration `json:"elapsed"`
}

// Outcome is delivered exactly once for every Submit.
type Outcome struct {
	Result Result
	Err    error
}

// OpenResult is delivered exactly once for every Open.
type OpenResult struct {
	Rater *Rater
	Err   error
}
