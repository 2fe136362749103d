// Package analysis turns what passes through the simulated hardware into
// performance entries, such as the coherence traffic of every port.
package analysis

import (
	"github.com/sarchlab/tilesim/datarecording"
)

// PerfTableName is the table that RecorderLogger writes into.
const PerfTableName = "perf"

// PerfEntry is a value measured at a place over a period of time.
type PerfEntry struct {
	Start       float64
	End         float64
	Where       string
	WhereRemote string
	What        string
	Value       float64
	Unit        string
}

// PerfLogger records performance entries.
type PerfLogger interface {
	AddDataEntry(entry PerfEntry)
}

// RecorderLogger is a PerfLogger that stores the entries with a
// DataRecorder.
type RecorderLogger struct {
	recorder datarecording.DataRecorder
}

// NewRecorderLogger creates the perf table in the recorder.
func NewRecorderLogger(recorder datarecording.DataRecorder) *RecorderLogger {
	recorder.CreateTable(PerfTableName, PerfEntry{})

	return &RecorderLogger{recorder: recorder}
}

// AddDataEntry stores an entry.
func (l *RecorderLogger) AddDataEntry(entry PerfEntry) {
	l.recorder.InsertData(PerfTableName, entry)
}
