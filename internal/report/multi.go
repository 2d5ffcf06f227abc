package report

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/pkg/rotation"
)

// Sink is a named ReportSink.
type Sink interface {
	rotation.ReportSink
	Name() string
}

// Multi fans a summary out to every sink. A failing sink does not stop the
// others; all failures are returned together.
type Multi struct {
	sinks  []Sink
	logger *logging.Logger
}

// NewMulti creates a fan-out sink.
func NewMulti(logger *logging.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Names lists the configured sinks in publish order.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish sends summary to each sink in order.
func (m *Multi) Publish(ctx context.Context, summary *rotation.Summary) error {
	var result *multierror.Error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, summary); err != nil {
			m.logger.Warn("Failed to publish report to %s: %v", s.Name(), err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.logger.Debug("Published report to %s", s.Name())
	}
	return result.ErrorOrNil()
}
