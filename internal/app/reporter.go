package app

import (
	"github.com/sirupsen/logrus"

	"github.com/loomhost/loom/internal/report"
)

// logReporter is the host's failure-reporting sink: every failure the
// core raises is logged with its full identity, and the host keeps
// running.
type logReporter struct {
	log *logrus.Logger
}

// Report implements the report.Reporter interface.
func (r *logReporter) Report(f report.Failure) {
	r.log.WithFields(logrus.Fields{
		"namespace":  f.Namespace,
		"identifier": f.Identifier,
		"version":    f.Version,
		"phase":      f.Phase.String(),
		"time":       f.Time,
	}).WithError(f.Cause).Error("plugin failure")
}
