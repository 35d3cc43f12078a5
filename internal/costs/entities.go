package costs

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkItem is a normalized, priced unit of billable work. Values are copied
// around; nothing in this package mutates one after it is built.
type WorkItem struct {
	ID                string           `json:"id"`
	CaseID            string           `json:"case_id"`
	FeeEarnerID       string           `json:"fee_earner_id"`
	FeeEarnerName     string           `json:"fee_earner_name,omitempty"`
	Grade             Grade            `json:"grade"`
	Date              time.Time        `json:"date"`
	ActivityType      string           `json:"activity_type,omitempty"`
	Description       string           `json:"description"`
	Units             int              `json:"units"`
	Hours             decimal.Decimal  `json:"hours"`
	HourlyRate        decimal.Decimal  `json:"hourly_rate"`
	ClaimedAmount     decimal.Decimal  `json:"claimed_amount"`
	Recoverable       bool             `json:"recoverable"`
	Disputed          bool             `json:"disputed"`
	DisputeReason     string           `json:"dispute_reason,omitempty"`
	OfferedAmount     *decimal.Decimal `json:"offered_amount,omitempty"`
	DisputeReply      string           `json:"dispute_reply,omitempty"`
	BillLine          int              `json:"bill_line,omitempty"`
	SourceDocumentIDs []string         `json:"source_document_ids,omitempty"`
}

// WithDispute returns a copy of the item annotated as disputed. offered is
// the paying party's alternative figure and may be nil.
func (w WorkItem) WithDispute(reason string, offered *decimal.Decimal) WorkItem {
	w.Disputed = true
	w.DisputeReason = reason
	w.OfferedAmount = cloneDecimal(offered)
	w.SourceDocumentIDs = cloneStrings(w.SourceDocumentIDs)
	return w
}

// WithReply returns a copy carrying the receiving party's reply to the dispute
func (w WorkItem) WithReply(reply string) WorkItem {
	w.DisputeReply = reply
	w.OfferedAmount = cloneDecimal(w.OfferedAmount)
	w.SourceDocumentIDs = cloneStrings(w.SourceDocumentIDs)
	return w
}

// Disbursement is a normalized out-of-pocket expense
type Disbursement struct {
	ID                string           `json:"id"`
	CaseID            string           `json:"case_id"`
	Date              time.Time        `json:"date"`
	Type              DisbursementType `json:"type"`
	Description       string           `json:"description"`
	Payee             string           `json:"payee,omitempty"`
	Net               decimal.Decimal  `json:"net"`
	VAT               decimal.Decimal  `json:"vat"`
	Gross             decimal.Decimal  `json:"gross"`
	VATExempt         bool             `json:"vat_exempt"`
	Recoverable       bool             `json:"recoverable"`
	Disputed          bool             `json:"disputed"`
	DisputeReason     string           `json:"dispute_reason,omitempty"`
	OfferedAmount     *decimal.Decimal `json:"offered_amount,omitempty"`
	DisputeReply      string           `json:"dispute_reply,omitempty"`
	VoucherDocumentID string           `json:"voucher_document_id,omitempty"`
}

// ClaimedAmount is what the disbursement contributes to the disbursements
// total: gross for exempt items, net otherwise (their VAT is totalled apart).
func (d Disbursement) ClaimedAmount() decimal.Decimal {
	if d.VATExempt {
		return d.Gross
	}
	return d.Net
}

func (d Disbursement) WithDispute(reason string, offered *decimal.Decimal) Disbursement {
	d.Disputed = true
	d.DisputeReason = reason
	d.OfferedAmount = cloneDecimal(offered)
	return d
}

func (d Disbursement) WithReply(reply string) Disbursement {
	d.DisputeReply = reply
	d.OfferedAmount = cloneDecimal(d.OfferedAmount)
	return d
}

// RawWorkItem is a work record as it arrives from extraction or manual entry
type RawWorkItem struct {
	ID                string           `json:"id"`
	CaseID            string           `json:"case_id"`
	FeeEarnerID       string           `json:"fee_earner_id"`
	FeeEarnerName     string           `json:"fee_earner_name"`
	Grade             string           `json:"grade"`
	Date              string           `json:"date"`
	ActivityType      string           `json:"activity_type"`
	Description       string           `json:"description"`
	Units             *int             `json:"units"`
	Hours             *decimal.Decimal `json:"hours"`
	HourlyRate        *decimal.Decimal `json:"hourly_rate"`
	ClaimedAmount     *decimal.Decimal `json:"claimed_amount"`
	Recoverable       *bool            `json:"recoverable"`
	Disputed          bool             `json:"disputed"`
	DisputeReason     string           `json:"dispute_reason"`
	OfferedAmount     *decimal.Decimal `json:"offered_amount"`
	DisputeReply      string           `json:"dispute_reply"`
	BillLine          int              `json:"bill_line"`
	SourceDocumentIDs []string         `json:"source_document_ids"`
}

// RawDisbursement is a disbursement record as it arrives from extraction
type RawDisbursement struct {
	ID                string           `json:"id"`
	CaseID            string           `json:"case_id"`
	Date              string           `json:"date"`
	Type              string           `json:"type"`
	Description       string           `json:"description"`
	Payee             string           `json:"payee"`
	Net               *decimal.Decimal `json:"net"`
	VAT               *decimal.Decimal `json:"vat"`
	Gross             *decimal.Decimal `json:"gross"`
	VATExempt         *bool            `json:"vat_exempt"`
	Recoverable       *bool            `json:"recoverable"`
	Disputed          bool             `json:"disputed"`
	DisputeReason     string           `json:"dispute_reason"`
	OfferedAmount     *decimal.Decimal `json:"offered_amount"`
	DisputeReply      string           `json:"dispute_reply"`
	VoucherDocumentID string           `json:"voucher_document_id"`
}

// Case is a snapshot of a case's normalized billing entities
type Case struct {
	ID            string
	WorkItems     []WorkItem
	Disbursements []Disbursement
}

// CaseFile is a snapshot of a case's raw billing records
type CaseFile struct {
	ID            string
	WorkItems     []RawWorkItem
	Disbursements []RawDisbursement
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
