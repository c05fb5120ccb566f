package observability

import "log/slog"

// Observer is the logging and counting surface injected into engine components.
// The zero value logs through slog.Default and counts nothing.
type Observer struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Component returns the observer's logger tagged with a component name.
func (o Observer) Component(name string) *slog.Logger {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
