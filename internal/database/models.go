package database

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LegalCase is a matter whose costs are being drafted. Reference is the
// identifier the billing code knows the case by.
type LegalCase struct {
	gorm.Model
	Reference     string               `json:"reference" gorm:"uniqueIndex;not null"`
	Title         string               `json:"title"`
	Court         string               `json:"court"`
	Claimant      string               `json:"claimant"`
	Defendant     string               `json:"defendant"`
	Description   string               `json:"description" gorm:"type:text"`
	FeeEarners    []FeeEarner          `json:"fee_earners,omitempty" gorm:"many2many:case_fee_earners;"`
	WorkItems     []WorkItemRecord     `json:"work_items,omitempty" gorm:"foreignKey:CaseID"`
	Disbursements []DisbursementRecord `json:"disbursements,omitempty" gorm:"foreignKey:CaseID"`
	Documents     []SourceDocument     `json:"documents,omitempty" gorm:"foreignKey:CaseID"`
}

// FeeEarner is shared across cases so that personal rates follow the person
type FeeEarner struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WorkItemRecord struct {
	ID                string                      `json:"id" gorm:"primaryKey"`
	CaseID            uint                        `json:"-" gorm:"index;not null"`
	FeeEarnerID       string                      `json:"fee_earner_id" gorm:"index"`
	FeeEarnerName     string                      `json:"fee_earner_name"`
	Grade             string                      `json:"grade"`
	Date              time.Time                   `json:"date"`
	ActivityType      string                      `json:"activity_type"`
	Description       string                      `json:"description" gorm:"type:text"`
	Units             *int                        `json:"units"`
	Hours             decimal.NullDecimal         `json:"hours" gorm:"type:text"`
	HourlyRate        decimal.NullDecimal         `json:"hourly_rate" gorm:"type:text"`
	ClaimedAmount     decimal.NullDecimal         `json:"claimed_amount" gorm:"type:text"`
	Recoverable       bool                        `json:"recoverable"`
	Disputed          bool                        `json:"disputed"`
	DisputeReason     string                      `json:"dispute_reason"`
	OfferedAmount     decimal.NullDecimal         `json:"offered_amount" gorm:"type:text"`
	DisputeReply      string                      `json:"dispute_reply" gorm:"type:text"`
	BillLine          int                         `json:"bill_line"`
	SourceDocumentIDs datatypes.JSONSlice[string] `json:"source_document_ids"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

type DisbursementRecord struct {
	ID                string              `json:"id" gorm:"primaryKey"`
	CaseID            uint                `json:"-" gorm:"index;not null"`
	Date              time.Time           `json:"date"`
	Type              string              `json:"type"`
	Description       string              `json:"description" gorm:"type:text"`
	Payee             string              `json:"payee"`
	Net               decimal.NullDecimal `json:"net" gorm:"type:text"`
	VAT               decimal.NullDecimal `json:"vat" gorm:"type:text"`
	Gross             decimal.NullDecimal `json:"gross" gorm:"type:text"`
	VATExempt         *bool               `json:"vat_exempt"`
	Recoverable       bool                `json:"recoverable"`
	Disputed          bool                `json:"disputed"`
	DisputeReason     string              `json:"dispute_reason"`
	OfferedAmount     decimal.NullDecimal `json:"offered_amount" gorm:"type:text"`
	DisputeReply      string              `json:"dispute_reply" gorm:"type:text"`
	VoucherDocumentID string              `json:"voucher_document_id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// SourceDocument is a file a work item or disbursement was extracted from.
// Only its metadata is kept.
type SourceDocument struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	CaseID       uint      `json:"-" gorm:"index;not null"`
	Filename     string    `json:"filename"`
	DocumentType string    `json:"document_type"`
	ContentType  string    `json:"content_type"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
}

// RateEntryRecord is one row of the rate schedule. CaseRef and FeeEarnerID
// are empty for firm defaults; rows are read back in insertion order.
type RateEntryRecord struct {
	gorm.Model
	EntryID       string          `json:"entry_id" gorm:"uniqueIndex;not null"`
	CaseRef       string          `json:"case_ref" gorm:"index"`
	Grade         string          `json:"grade"`
	FeeEarnerID   string          `json:"fee_earner_id"`
	HourlyRate    decimal.Decimal `json:"hourly_rate" gorm:"type:text"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
}

// BillLog records every attempt to produce a document
type BillLog struct {
	gorm.Model
	CaseRef      string          `json:"case_ref" gorm:"index"`
	Document     string          `json:"document"`
	Format       string          `json:"format"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message"`
	GrandTotal   decimal.Decimal `json:"grand_total" gorm:"type:text"`
	OutputPath   string          `json:"output_path"`
	GeneratedAt  time.Time       `json:"generated_at"`
	IPAddress    string          `json:"ip_address"`
}

func (LegalCase) TableName() string {
	return "legal_cases"
}

func (FeeEarner) TableName() string {
	return "fee_earners"
}

func (WorkItemRecord) TableName() string {
	return "work_items"
}

func (DisbursementRecord) TableName() string {
	return "disbursements"
}

func (SourceDocument) TableName() string {
	return "source_documents"
}

func (RateEntryRecord) TableName() string {
	return "rate_entries"
}

func (BillLog) TableName() string {
	return "bill_logs"
}
