package models

// SummaryTotals counts the main entities for the batch dashboard.
type SummaryTotals struct {
	Instructors int `db:"instructors" json:"instructors"`
	Inspectors  int `db:"inspectors" json:"inspectors"`
	Courses     int `db:"courses" json:"courses"`
	Branches    int `db:"branches" json:"branches"`
	Batches     int `db:"batches" json:"batches"`
}
