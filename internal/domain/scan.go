package domain

import "time"

// Scan report status constants.
const (
	ScanStatusOK     = "OK"
	ScanStatusBroken = "BROKEN"
	ScanStatusError  = "ERROR"
)

// TimeRange brackets one column's scan.
type TimeRange struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// NewTimeRange closes a range that started at start.
func NewTimeRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start, End: end, Duration: end.Sub(start)}
}

// WrongExample is the first (lowest id) row whose stored value disagrees
// with the recomputed one.
type WrongExample struct {
	Actual   any    `json:"actual"`
	Expected any    `json:"expected"`
	Table    string `json:"table"`
	RowID    any    `json:"row_id"`
	// SelectExpectedForThatRow recomputes and compares the value for RowID
	// only; it is meant to be pasted into a SQL console.
	SelectExpectedForThatRow string         `json:"select_expected_for_that_row"`
	Row                      map[string]any `json:"row"`
	// SourceRows is nil when the column reads more than one table.
	SourceRows []map[string]any `json:"source_rows,omitempty"`
}

// ScanColumnStart is passed to the start callback.
type ScanColumnStart struct {
	Column string    `json:"column"`
	Start  time.Time `json:"start"`
}

// ScanColumnResult is the outcome of one successfully executed column scan.
type ScanColumnResult struct {
	Column         string        `json:"column"`
	HasWrongValues bool          `json:"has_wrong_values"`
	WrongExample   *WrongExample `json:"wrong_example,omitempty"`
	Time           TimeRange     `json:"time"`
}

// ScanColumnError is the outcome of a column scan whose query failed.
type ScanColumnError struct {
	Column string    `json:"column"`
	Err    error     `json:"-"`
	Time   TimeRange `json:"time"`
}

func (e *ScanColumnError) Error() string {
	return "scan " + e.Column + ": " + e.Err.Error()
}

func (e *ScanColumnError) Unwrap() error { return e.Err }

// ScanRun is one execution of the scanner, as persisted by the audit layer.
type ScanRun struct {
	ID             string
	Filter         string
	StartedAt      time.Time
	FinishedAt     *time.Time
	ColumnsScanned int
	BrokenCount    int
	ErrorCount     int
}

// ScanReport is the persisted outcome of one column within a run.
type ScanReport struct {
	ID           string
	RunID        string
	Column       string
	Status       string // OK, BROKEN, ERROR
	WrongExample *WrongExample
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ScanReportFilter narrows ListReports.
type ScanReportFilter struct {
	RunID  *string
	Column *string
	Status *string
	Limit  int
}
