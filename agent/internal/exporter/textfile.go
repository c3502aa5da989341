package exporter

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crashdetector/crashdetector/pkg/metrics"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// Textfile rewrites path with the snapshot gauges after every cycle.
type Textfile struct {
	path string
	rec  *metrics.Recorder
}

// NewTextfile returns an exporter writing to path.
func NewTextfile(path string) *Textfile {
	return &Textfile{path: path, rec: metrics.New()}
}

// Name identifies the sink in logs.
func (t *Textfile) Name() string { return "textfile" }

// Publish records s and writes the exposition atomically.
func (t *Textfile) Publish(_ context.Context, s *types.Snapshot) error {
	t.rec.Observe(s)
	if err := prometheus.WriteToTextfile(t.path, t.rec.Registry()); err != nil {
		return fmt.Errorf("exporter: write %s: %w", t.path, err)
	}
	return nil
}
