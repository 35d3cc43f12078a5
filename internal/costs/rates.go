package costs

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateResolver looks up the hourly rate for a piece of work
type RateResolver interface {
	Resolve(caseID string, grade Grade, feeEarnerID string, date time.Time) (decimal.Decimal, error)
}

// RateEntry is one line of a rate schedule. An empty CaseID makes it a firm
// default, an empty FeeEarnerID applies it to every fee earner of the grade.
// A nil EffectiveTo leaves it open ended.
type RateEntry struct {
	ID            string          `json:"id"`
	CaseID        string          `json:"case_id,omitempty"`
	Grade         Grade           `json:"grade"`
	FeeEarnerID   string          `json:"fee_earner_id,omitempty"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

// Specificity ranks, highest wins.
const (
	rankFirmDefault = iota
	rankCaseGrade
	rankFeeEarner
	rankFeeEarnerCase
)

func (e RateEntry) specificity(caseID, feeEarnerID string) (int, bool) {
	switch {
	case e.FeeEarnerID != "":
		if e.FeeEarnerID != feeEarnerID {
			return 0, false
		}
		if e.CaseID == "" {
			return rankFeeEarner, true
		}
		return rankFeeEarnerCase, e.CaseID == caseID
	case e.CaseID != "":
		return rankCaseGrade, e.CaseID == caseID
	default:
		return rankFirmDefault, true
	}
}

func (e RateEntry) covers(d time.Time) bool {
	if d.Before(e.EffectiveFrom) {
		return false
	}
	return e.EffectiveTo == nil || !d.After(*e.EffectiveTo)
}

func (e RateEntry) validate() error {
	switch {
	case !e.Grade.Valid():
		return fmt.Errorf("%w %s: %w %q", ErrInvalidRateEntry, e.ID, ErrUnknownGrade, e.Grade)
	case !e.HourlyRate.IsPositive():
		return fmt.Errorf("%w %s: hourly rate must be positive", ErrInvalidRateEntry, e.ID)
	case e.EffectiveFrom.IsZero():
		return fmt.Errorf("%w %s: effective_from is required", ErrInvalidRateEntry, e.ID)
	case e.EffectiveTo != nil && e.EffectiveTo.Before(e.EffectiveFrom):
		return fmt.Errorf("%w %s: effective_to is before effective_from", ErrInvalidRateEntry, e.ID)
	}
	return nil
}

// RateSchedule is an immutable set of rate entries. It is safe for
// concurrent lookups.
type RateSchedule struct {
	entries []RateEntry
}

var _ RateResolver = (*RateSchedule)(nil)

// NewRateSchedule validates and copies the entries. Entry order is kept and
// settles otherwise identical matches.
func NewRateSchedule(entries []RateEntry) (*RateSchedule, error) {
	s := &RateSchedule{entries: make([]RateEntry, 0, len(entries))}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		e.EffectiveFrom = day(e.EffectiveFrom)
		if e.EffectiveTo != nil {
			to := day(*e.EffectiveTo)
			e.EffectiveTo = &to
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Entries returns a copy of the schedule's entries
func (s *RateSchedule) Entries() []RateEntry {
	if s == nil {
		return nil
	}
	out := make([]RateEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *RateSchedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Resolve picks the most specific entry covering the work date, preferring the
// latest effective_from among equally specific entries.
func (s *RateSchedule) Resolve(caseID string, grade Grade, feeEarnerID string, date time.Time) (decimal.Decimal, error) {
	if !grade.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownGrade, grade)
	}
	if date.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: work date is required to resolve a rate", ErrInvalidRecord)
	}

	d := day(date)
	best, bestRank := -1, -1
	if s != nil {
		for i, e := range s.entries {
			if e.Grade != grade || !e.covers(d) {
				continue
			}
			rank, ok := e.specificity(caseID, feeEarnerID)
			if !ok {
				continue
			}
			if best == -1 || rank > bestRank ||
				(rank == bestRank && e.EffectiveFrom.After(s.entries[best].EffectiveFrom)) {
				best, bestRank = i, rank
			}
		}
	}

	if best == -1 {
		return decimal.Zero, &RateNotFoundError{
			CaseID:      caseID,
			FeeEarnerID: feeEarnerID,
			Grade:       grade,
			Date:        d,
		}
	}
	return s.entries[best].HourlyRate, nil
}
