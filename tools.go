//go:build tools

// Package huddle pins the tools run by go generate (mockgen) so that they are
// versioned in go.mod like any other dependency.
package huddle

import (
	_ "go.uber.org/mock/mockgen"
)
