package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

type VisitStatus string

const (
	VisitStatusScheduled  VisitStatus = "scheduled"
	VisitStatusInProgress VisitStatus = "in-progress"
	VisitStatusCompleted  VisitStatus = "completed"
	VisitStatusCancelled  VisitStatus = "cancelled"
)

var visitTypes = map[string]bool{
	"walk-in":     true,
	"scheduled":   true,
	"appointment": true,
	"emergency":   true,
	"follow-up":   true,
}

type Visit struct {
	Base
	VisitID   string      `db:"visit_id" json:"visit_id"`
	PatientID int64       `db:"patient_id" json:"patient_id"`
	DoctorID  int64       `db:"doctor_id" json:"doctor_id"`
	VisitDate time.Time   `db:"visit_date" json:"visit_date"`
	VisitType string      `db:"visit_type" json:"visit_type"`
	Status    VisitStatus `db:"status" json:"status"`
}

// Reference renders the human label used on printed documents.
func (v *Visit) Reference() string {
	return fmt.Sprintf("Visit #%d - %s", v.ID, v.VisitDate.Format("2006-01-02"))
}

func (v Visit) MarshalJSON() ([]byte, error) {
	type alias Visit
	return json.Marshal(struct {
		alias
		VisitReference string `json:"visit_reference"`
	}{alias(v), v.Reference()})
}

// NormalizeVisitType lower-cases t and folds spaces and underscores into dashes.
func NormalizeVisitType(t string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(t))
	v = strings.NewReplacer(" ", "-", "_", "-").Replace(v)
	if !visitTypes[v] {
		return "", errors.BadRequest("invalid visit type "+t, nil)
	}
	return v, nil
}

func ParseVisitStatus(s string) (VisitStatus, error) {
	st := VisitStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case VisitStatusScheduled, VisitStatusInProgress, VisitStatusCompleted, VisitStatusCancelled:
		return st, nil
	}
	return "", errors.BadRequest("invalid visit status "+s, nil)
}

// Terminal reports whether no further transitions are allowed.
func (s VisitStatus) Terminal() bool {
	return s == VisitStatusCompleted || s == VisitStatusCancelled
}

// CanTransition reports whether a visit may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to VisitStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case VisitStatusCancelled:
		return true
	case VisitStatusInProgress:
		return from == VisitStatusScheduled
	case VisitStatusCompleted:
		return from == VisitStatusInProgress
	}
	return false
}

type VisitFilter struct {
	PatientID int64
	DoctorID  int64
	Status    VisitStatus
	Pagination
}

type CreateVisitRequest struct {
	VisitID   string     `json:"visit_id"`
	PatientID string     `json:"patient_id" binding:"required"`
	DoctorID  string     `json:"doctor_id" binding:"required"`
	VisitType string     `json:"visit_type" binding:"required"`
	Status    string     `json:"status"`
	VisitDate *time.Time `json:"visit_date"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
