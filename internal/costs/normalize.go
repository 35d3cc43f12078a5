package costs

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Normalizer turns raw records into priced, validated entities. It either
// returns a fully populated value or an error, never a partial entity.
type Normalizer struct {
	rates RateResolver
}

func NewNormalizer(rates RateResolver) *Normalizer {
	return &Normalizer{rates: rates}
}

// NormalizeWorkItem validates a raw work record, derives its time and prices it.
// An agreed rate on the record takes precedence over the rate schedule.
func (n *Normalizer) NormalizeWorkItem(raw RawWorkItem) (WorkItem, error) {
	id := strings.TrimSpace(raw.ID)
	caseID := strings.TrimSpace(raw.CaseID)
	invalid := func(field, reason string, err error) (WorkItem, error) {
		return WorkItem{}, &ValidationError{RecordID: id, CaseID: caseID, Field: field, Reason: reason, Err: err}
	}

	if id == "" {
		return invalid("id", "is required", nil)
	}
	if caseID == "" {
		return invalid("case_id", "is required", nil)
	}
	feeEarnerID := strings.TrimSpace(raw.FeeEarnerID)
	if feeEarnerID == "" {
		return invalid("fee_earner_id", "is required", nil)
	}
	grade, err := ParseGrade(raw.Grade)
	if err != nil {
		return invalid("grade", fmt.Sprintf("%q is not a recognised grade", raw.Grade), err)
	}
	date, err := ParseDate(raw.Date)
	if err != nil {
		return invalid("date", err.Error(), nil)
	}
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return invalid("description", "is required", nil)
	}

	hours, units, err := workTime(id, caseID, raw.Units, raw.Hours)
	if err != nil {
		return WorkItem{}, err
	}

	var rate decimal.Decimal
	if raw.HourlyRate != nil {
		if !raw.HourlyRate.IsPositive() {
			return invalid("hourly_rate", "must be positive", nil)
		}
		rate = *raw.HourlyRate
	} else {
		if n.rates == nil {
			return WorkItem{}, &RateNotFoundError{CaseID: caseID, FeeEarnerID: feeEarnerID, Grade: grade, Date: date}
		}
		rate, err = n.rates.Resolve(caseID, grade, feeEarnerID, date)
		if err != nil {
			return WorkItem{}, fmt.Errorf("work item %s: %w", id, err)
		}
	}

	claimed := RoundMoney(hours.Mul(rate))
	if raw.ClaimedAmount != nil && !within(*raw.ClaimedAmount, claimed, moneyTolerance) {
		return WorkItem{}, &DataInconsistencyError{
			RecordID: id,
			CaseID:   caseID,
			Field:    "claimed_amount",
			Supplied: *raw.ClaimedAmount,
			Computed: claimed,
		}
	}

	recoverable := true
	if raw.Recoverable != nil {
		recoverable = *raw.Recoverable
	}
	offered, reply, ok := disputeTerms(raw.Disputed, raw.OfferedAmount, raw.DisputeReply)
	if !ok {
		return invalid("offered_amount", "must not be negative", nil)
	}

	return WorkItem{
		ID:                id,
		CaseID:            caseID,
		FeeEarnerID:       feeEarnerID,
		FeeEarnerName:     strings.TrimSpace(raw.FeeEarnerName),
		Grade:             grade,
		Date:              date,
		ActivityType:      strings.TrimSpace(raw.ActivityType),
		Description:       description,
		Units:             units,
		Hours:             hours,
		HourlyRate:        rate,
		ClaimedAmount:     claimed,
		Recoverable:       recoverable,
		Disputed:          raw.Disputed,
		DisputeReason:     strings.TrimSpace(raw.DisputeReason),
		OfferedAmount:     offered,
		DisputeReply:      reply,
		BillLine:          raw.BillLine,
		SourceDocumentIDs: cloneStrings(raw.SourceDocumentIDs),
	}, nil
}

// workTime derives decimal hours from 6-minute units, or units from hours
// when the hours fall on a unit boundary. Units win when both agree.
func workTime(id, caseID string, units *int, hours *decimal.Decimal) (decimal.Decimal, int, error) {
	invalid := func(field, reason string) error {
		return &ValidationError{RecordID: id, CaseID: caseID, Field: field, Reason: reason}
	}

	switch {
	case units != nil:
		if *units <= 0 {
			return decimal.Zero, 0, invalid("units", "must be positive")
		}
		derived := decimal.NewFromInt(int64(*units)).Div(unitsPerHour)
		if hours != nil && !within(*hours, derived, hoursTolerance) {
			return decimal.Zero, 0, &DataInconsistencyError{
				RecordID: id,
				CaseID:   caseID,
				Field:    "hours",
				Supplied: *hours,
				Computed: derived,
			}
		}
		return derived, *units, nil
	case hours != nil:
		if !hours.IsPositive() {
			return decimal.Zero, 0, invalid("hours", "must be positive")
		}
		u := hours.Mul(unitsPerHour)
		if u.Equal(u.Truncate(0)) {
			return *hours, int(u.IntPart()), nil
		}
		return *hours, 0, nil
	default:
		return decimal.Zero, 0, invalid("time_spent", "needs units or hours")
	}
}

// NormalizeDisbursement validates a raw disbursement and derives its gross.
// VAT is taken from the voucher as given and never recomputed.
func NormalizeDisbursement(raw RawDisbursement) (Disbursement, error) {
	id := strings.TrimSpace(raw.ID)
	caseID := strings.TrimSpace(raw.CaseID)
	invalid := func(field, reason string, err error) (Disbursement, error) {
		return Disbursement{}, &ValidationError{RecordID: id, CaseID: caseID, Field: field, Reason: reason, Err: err}
	}

	if id == "" {
		return invalid("id", "is required", nil)
	}
	if caseID == "" {
		return invalid("case_id", "is required", nil)
	}
	date, err := ParseDate(raw.Date)
	if err != nil {
		return invalid("date", err.Error(), nil)
	}
	typ, err := ParseDisbursementType(raw.Type)
	if err != nil {
		return invalid("type", fmt.Sprintf("%q is not a recognised disbursement type", raw.Type), err)
	}
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return invalid("description", "is required", nil)
	}

	exempt := typ.DefaultVATExempt()
	if raw.VATExempt != nil {
		exempt = *raw.VATExempt
	}

	vat := decimal.Zero
	if raw.VAT != nil {
		vat = *raw.VAT
	}
	if vat.IsNegative() {
		return invalid("vat", "must not be negative", nil)
	}
	if exempt && !vat.IsZero() {
		return Disbursement{}, &DataInconsistencyError{
			RecordID: id,
			CaseID:   caseID,
			Field:    "vat",
			Supplied: vat,
			Computed: decimal.Zero,
		}
	}

	var net decimal.Decimal
	switch {
	case raw.Net != nil:
		net = *raw.Net
	case raw.Gross != nil:
		net = raw.Gross.Sub(vat)
	default:
		return invalid("net", "is required when gross is not supplied", nil)
	}
	if net.IsNegative() {
		return invalid("net", "must not be negative", nil)
	}
	net = RoundMoney(net)
	vat = RoundMoney(vat)

	gross := RoundMoney(net.Add(vat))
	if raw.Gross != nil && !within(*raw.Gross, gross, moneyTolerance) {
		return Disbursement{}, &DataInconsistencyError{
			RecordID: id,
			CaseID:   caseID,
			Field:    "gross",
			Supplied: *raw.Gross,
			Computed: gross,
		}
	}

	recoverable := true
	if raw.Recoverable != nil {
		recoverable = *raw.Recoverable
	}
	offered, reply, ok := disputeTerms(raw.Disputed, raw.OfferedAmount, raw.DisputeReply)
	if !ok {
		return invalid("offered_amount", "must not be negative", nil)
	}

	return Disbursement{
		ID:                id,
		CaseID:            caseID,
		Date:              date,
		Type:              typ,
		Description:       description,
		Payee:             strings.TrimSpace(raw.Payee),
		Net:               net,
		VAT:               vat,
		Gross:             gross,
		VATExempt:         exempt,
		Recoverable:       recoverable,
		Disputed:          raw.Disputed,
		DisputeReason:     strings.TrimSpace(raw.DisputeReason),
		OfferedAmount:     offered,
		DisputeReply:      reply,
		VoucherDocumentID: strings.TrimSpace(raw.VoucherDocumentID),
	}, nil
}

// disputeTerms keeps the offered figure and reply only on disputed records.
// ok is false for a negative offer.
func disputeTerms(disputed bool, offered *decimal.Decimal, reply string) (*decimal.Decimal, string, bool) {
	if !disputed {
		return nil, "", true
	}
	if offered == nil {
		return nil, strings.TrimSpace(reply), true
	}
	if offered.IsNegative() {
		return nil, "", false
	}
	o := RoundMoney(*offered)
	return &o, strings.TrimSpace(reply), true
}

// NormalizeCase normalizes every record of a case file. Records without a case
// id inherit the file's; records naming another case are rejected. All
// failures are reported together as an *IncompleteBillError.
func (n *Normalizer) NormalizeCase(file CaseFile) (Case, error) {
	c := Case{
		ID:            file.ID,
		WorkItems:     make([]WorkItem, 0, len(file.WorkItems)),
		Disbursements: make([]Disbursement, 0, len(file.Disbursements)),
	}
	var problems []ItemProblem

	for _, raw := range file.WorkItems {
		if strings.TrimSpace(raw.CaseID) == "" {
			raw.CaseID = file.ID
		}
		item, err := n.NormalizeWorkItem(raw)
		if err == nil && item.CaseID != file.ID {
			err = foreignRecord(item.ID, item.CaseID, file.ID)
		}
		if err != nil {
			g, _ := ParseGrade(raw.Grade)
			problems = append(problems, ItemProblem{
				RecordID: raw.ID,
				Kind:     KindWorkItem,
				Grade:    g,
				Date:     parseDateLoose(raw.Date),
				Err:      err,
			})
			continue
		}
		c.WorkItems = append(c.WorkItems, item)
	}

	for _, raw := range file.Disbursements {
		if strings.TrimSpace(raw.CaseID) == "" {
			raw.CaseID = file.ID
		}
		d, err := NormalizeDisbursement(raw)
		if err == nil && d.CaseID != file.ID {
			err = foreignRecord(d.ID, d.CaseID, file.ID)
		}
		if err != nil {
			problems = append(problems, ItemProblem{
				RecordID: raw.ID,
				Kind:     KindDisbursement,
				Date:     parseDateLoose(raw.Date),
				Err:      err,
			})
			continue
		}
		c.Disbursements = append(c.Disbursements, d)
	}

	if len(problems) > 0 {
		return Case{}, &IncompleteBillError{CaseID: file.ID, Problems: problems}
	}
	return c, nil
}

func foreignRecord(id, caseID, want string) error {
	return &ValidationError{
		RecordID: id,
		CaseID:   caseID,
		Field:    "case_id",
		Reason:   fmt.Sprintf("belongs to another case than %s", want),
	}
}

func parseDateLoose(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
