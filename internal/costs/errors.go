package costs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRateNotFound            = errors.New("no applicable hourly rate")
	ErrDataInconsistency       = errors.New("inconsistent record data")
	ErrInvalidRecord           = errors.New("invalid record")
	ErrIncompleteBill          = errors.New("bill is incomplete")
	ErrUnknownGrade            = errors.New("unknown fee earner grade")
	ErrUnknownDisbursementType = errors.New("unknown disbursement type")
	ErrInvalidVATRate          = errors.New("vat rate must be at least 0 and below 1")
	ErrInvalidRateEntry        = errors.New("invalid rate schedule entry")
)

// RateNotFoundError is returned when no schedule entry covers a piece of work
type RateNotFoundError struct {
	CaseID      string
	FeeEarnerID string
	Grade       Grade
	Date        time.Time
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("no hourly rate for case %s, fee earner %s (%s) on %s",
		e.CaseID, e.FeeEarnerID, e.Grade, e.Date.Format(DateLayout))
}

func (e *RateNotFoundError) Is(target error) bool {
	return target == ErrRateNotFound
}

// DataInconsistencyError reports a supplied value that disagrees with the value
// derived from the rest of the record.
type DataInconsistencyError struct {
	RecordID string
	CaseID   string
	Field    string
	Supplied decimal.Decimal
	Computed decimal.Decimal
}

func (e *DataInconsistencyError) Error() string {
	return fmt.Sprintf("record %s (case %s): %s supplied as %s but computed as %s",
		e.RecordID, e.CaseID, e.Field, e.Supplied.String(), e.Computed.String())
}

func (e *DataInconsistencyError) Is(target error) bool {
	return target == ErrDataInconsistency
}

// ValidationError reports a missing or malformed field on a raw record
type ValidationError struct {
	RecordID string
	CaseID   string
	Field    string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("record %s (case %s): %s %s", id, e.CaseID, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RecordKind tells work items and disbursements apart in error reports
type RecordKind string

const (
	KindWorkItem     RecordKind = "work_item"
	KindDisbursement RecordKind = "disbursement"
)

// ItemProblem identifies one record that kept a bill from being built
type ItemProblem struct {
	RecordID string     `json:"record_id"`
	Kind     RecordKind `json:"kind"`
	Grade    Grade      `json:"grade,omitempty"`
	Date     time.Time  `json:"date,omitempty"`
	Err      error      `json:"-"`
}

// Reason is the underlying failure as text
func (p ItemProblem) Reason() string {
	if p.Err == nil {
		return ""
	}
	return p.Err.Error()
}

// IncompleteBillError lists every record that could not be normalized or priced.
type IncompleteBillError struct {
	CaseID   string
	Problems []ItemProblem
}

func (e *IncompleteBillError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s %s: %s", p.Kind, p.RecordID, p.Reason()))
	}
	return fmt.Sprintf("bill for case %s is incomplete, %d record(s) need attention: %s",
		e.CaseID, len(e.Problems), strings.Join(parts, "; "))
}

func (e *IncompleteBillError) Is(target error) bool {
	return target == ErrIncompleteBill
}

// Unwrap exposes each record's cause to errors.Is and errors.As
func (e *IncompleteBillError) Unwrap() []error {
	errs := make([]error, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errs
}
