package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a typed failure from the workflow engine API.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s failed (%d): %s", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is the engine saying the resource does not
// exist. Compensating deletes treat this as already-satisfied.
func IsNotFound(err error) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsStructuralActivation reports whether err is the engine rejecting an
// activation because the workflow has no startable node. Retrying cannot fix
// a structural problem.
func IsStructuralActivation(err error) bool {
	var engineErr *Error
	if !errors.As(err, &engineErr) {
		return false
	}
	msg := strings.ToLower(engineErr.Message)
	return strings.Contains(msg, "no node to start")
}
