package health

import "context"

// Pinger checks availability of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component is a named dependency taking part in the health report.
type Component struct {
	Name   string
	Pinger Pinger
}
