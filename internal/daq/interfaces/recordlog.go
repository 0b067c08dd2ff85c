package interfaces

import (
	"context"
	"log"
	"strconv"
	"strings"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

// RecordLogger prints one line per write tick with the latest value of
// every channel, the view an operator watches during a run.
type RecordLogger struct {
	logger *log.Logger
}

// NewRecordLogger wraps the given logger.
func NewRecordLogger(logger *log.Logger) *RecordLogger {
	return &RecordLogger{logger: logger}
}

// Name identifies this sink in metrics and logs.
func (l *RecordLogger) Name() string { return "console" }

// WriteRecord prints the flattened record.
func (l *RecordLogger) WriteRecord(_ context.Context, rec daq.AggregateRecord) error {
	var b strings.Builder
	b.WriteString("tick ")
	b.WriteString(rec.TS.Format("15:04:05"))
	for _, entry := range rec.Entries {
		if entry.Status == daq.StatusNoData {
			b.WriteString(" ")
			b.WriteString(entry.Device)
			b.WriteString("=<no data>")
			continue
		}
		for j, ch := range entry.Channels {
			b.WriteString(" ")
			b.WriteString(entry.Device)
			b.WriteString("/")
			b.WriteString(ch)
			b.WriteString("=")
			if j < len(entry.Values) {
				b.WriteString(strconv.FormatFloat(entry.Values[j], 'f', 2, 64))
			} else {
				b.WriteString("?")
			}
		}
		if entry.Status == daq.StatusStale {
			b.WriteString(" (")
			b.WriteString(entry.Device)
			b.WriteString(" stale)")
		}
	}
	l.logger.Print(b.String())
	return nil
}
