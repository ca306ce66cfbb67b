package model

import "time"

// MonthlyTotals is one calendar month of clinic activity.
type MonthlyTotals struct {
	// Month is formatted YYYY-MM.
	Month         string  `db:"month" json:"month"`
	Visits        int     `db:"visits" json:"visits"`
	Prescriptions int     `db:"prescriptions" json:"prescriptions"`
	Invoiced      float64 `db:"invoiced" json:"invoiced"`
}

// DrugUsage counts how often a drug was prescribed.
type DrugUsage struct {
	DrugID        int64  `db:"drug_id" json:"drug_id"`
	Name          string `db:"name" json:"name"`
	Prescriptions int    `db:"prescriptions" json:"prescriptions"`
	Quantity      int    `db:"quantity" json:"quantity"`
}

// Dashboard is the landing summary: activity per month since From, the
// number of patients ever seen and the most prescribed drugs over the
// same months.
type Dashboard struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	Months         []MonthlyTotals `json:"months"`
	ActivePatients int             `json:"active_patients"`
	TopDrugs       []DrugUsage     `json:"top_drugs"`
}

// PrescriptionReport ranks drugs by the number of prescriptions naming them.
type PrescriptionReport struct {
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	TopDrugs []DrugUsage `json:"top_drugs"`
}

// MonthKey formats t as the YYYY-MM month it falls in, in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
