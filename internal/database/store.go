package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrFeeEarnerNotFound = errors.New("fee earner not found")
)

// recordDate is how record dates travel back into the billing code
const recordDate = "2006-01-02"

// Store wraps the queries the billing service needs
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) CreateCase(ctx context.Context, c *LegalCase) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create case %s: %w", c.Reference, err)
	}
	return nil
}

func (s *Store) FindCase(ctx context.Context, ref string) (*LegalCase, error) {
	var c LegalCase
	err := s.db.WithContext(ctx).Preload("FeeEarners").Where("reference = ?", ref).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", ref, err)
	}
	return &c, nil
}

// ListCases returns one page of cases, newest first, and the total count
func (s *Store) ListCases(ctx context.Context, page, limit int) ([]LegalCase, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&LegalCase{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var cases []LegalCase
	err := s.db.WithContext(ctx).
		Offset((page - 1) * limit).Limit(limit).
		Order("created_at DESC").
		Find(&cases).Error
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

// AddFeeEarner saves the fee earner and attaches them to the case
func (s *Store) AddFeeEarner(ctx context.Context, c *LegalCase, fe *FeeEarner) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(fe).Error; err != nil {
			return fmt.Errorf("failed to save fee earner %s: %w", fe.ID, err)
		}
		if err := tx.Model(c).Association("FeeEarners").Append(fe); err != nil {
			return fmt.Errorf("failed to attach fee earner %s: %w", fe.ID, err)
		}
		return nil
	})
}

func (s *Store) FindFeeEarner(ctx context.Context, id string) (*FeeEarner, error) {
	var fe FeeEarner
	err := s.db.WithContext(ctx).First(&fe, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFeeEarnerNotFound, id)
	}
	return &fe, err
}

func (s *Store) AddDocument(ctx context.Context, doc *SourceDocument) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

func (s *Store) AddWorkItem(ctx context.Context, rec *WorkItemRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// DeleteWorkItem removes the work item only; its source documents stay
func (s *Store) DeleteWorkItem(ctx context.Context, caseID uint, id string) error {
	res := s.db.WithContext(ctx).Where("case_id = ? AND id = ?", caseID, id).Delete(&WorkItemRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: work item %s", ErrRecordNotFound, id)
	}
	return nil
}

func (s *Store) AddDisbursement(ctx context.Context, rec *DisbursementRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// SetDispute marks or clears a dispute on a work item or disbursement.
// Clearing a dispute also drops the offered figure and any reply.
func (s *Store) SetDispute(ctx context.Context, kind costs.RecordKind, caseID uint, id string, disputed bool, reason string, offered *decimal.Decimal) error {
	model, err := recordModel(kind)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"disputed":       disputed,
		"dispute_reason": reason,
		"offered_amount": nullDecimal(offered),
	}
	if !disputed {
		updates["dispute_reason"] = ""
		updates["offered_amount"] = decimal.NullDecimal{}
		updates["dispute_reply"] = ""
	}

	res := s.db.WithContext(ctx).Model(model).
		Where("case_id = ? AND id = ?", caseID, id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, kind, id)
	}
	return nil
}

// SetReply records the receiving party's reply to a disputed line
func (s *Store) SetReply(ctx context.Context, kind costs.RecordKind, caseID uint, id string, reply string) error {
	model, err := recordModel(kind)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(model).
		Where("case_id = ? AND id = ? AND disputed = ?", caseID, id, true).
		Update("dispute_reply", reply)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no disputed %s %s", ErrRecordNotFound, kind, id)
	}
	return nil
}

func recordModel(kind costs.RecordKind) (interface{}, error) {
	switch kind {
	case costs.KindWorkItem:
		return &WorkItemRecord{}, nil
	case costs.KindDisbursement:
		return &DisbursementRecord{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// CaseFile loads the case's records in the order they were entered
func (s *Store) CaseFile(ctx context.Context, c *LegalCase) (costs.CaseFile, error) {
	var (
		work  []WorkItemRecord
		disbs []DisbursementRecord
	)
	db := s.db.WithContext(ctx)
	if err := db.Where("case_id = ?", c.ID).Order("rowid").Find(&work).Error; err != nil {
		return costs.CaseFile{}, fmt.Errorf("failed to load work items for %s: %w", c.Reference, err)
	}
	if err := db.Where("case_id = ?", c.ID).Order("rowid").Find(&disbs).Error; err != nil {
		return costs.CaseFile{}, fmt.Errorf("failed to load disbursements for %s: %w", c.Reference, err)
	}

	file := costs.CaseFile{
		ID:            c.Reference,
		WorkItems:     make([]costs.RawWorkItem, 0, len(work)),
		Disbursements: make([]costs.RawDisbursement, 0, len(disbs)),
	}
	for _, w := range work {
		file.WorkItems = append(file.WorkItems, w.Raw(c.Reference))
	}
	for _, d := range disbs {
		file.Disbursements = append(file.Disbursements, d.Raw(c.Reference))
	}
	return file, nil
}

// RateEntries returns the firm-wide entries plus those for the case, in
// schedule order.
func (s *Store) RateEntries(ctx context.Context, caseRef string) ([]costs.RateEntry, error) {
	var rows []RateEntryRecord
	err := s.db.WithContext(ctx).
		Where("case_ref = '' OR case_ref = ?", caseRef).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rate entries: %w", err)
	}

	entries := make([]costs.RateEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.Entry())
	}
	return entries, nil
}

// AddRateEntries inserts entries and returns how many were stored and the
// ids that were skipped because an entry with that id already exists.
func (s *Store) AddRateEntries(ctx context.Context, entries []costs.RateEntry) (int64, []string, error) {
	if len(entries) == 0 {
		return 0, nil, nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	var (
		added   int64
		skipped []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&RateEntryRecord{}).Where("entry_id IN ?", ids).Pluck("entry_id", &existing).Error; err != nil {
			return err
		}
		seen := make(map[string]bool, len(entries))
		for _, id := range existing {
			seen[id] = true
		}

		rows := make([]RateEntryRecord, 0, len(entries))
		for _, e := range entries {
			if seen[e.ID] {
				skipped = append(skipped, e.ID)
				continue
			}
			seen[e.ID] = true
			rows = append(rows, NewRateEntryRecord(e))
		}
		if len(rows) == 0 {
			return nil
		}

		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "entry_id"}}, DoNothing: true}).
			Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to save rate entries: %w", err)
	}
	return added, skipped, nil
}

func (s *Store) LogBill(ctx context.Context, log *BillLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// NewWorkItemRecord converts an ingested work item. The date must already
// have been validated.
func NewWorkItemRecord(caseID uint, raw costs.RawWorkItem) (WorkItemRecord, error) {
	date, err := costs.ParseDate(raw.Date)
	if err != nil {
		return WorkItemRecord{}, err
	}
	rec := WorkItemRecord{
		ID:                raw.ID,
		CaseID:            caseID,
		FeeEarnerID:       raw.FeeEarnerID,
		FeeEarnerName:     raw.FeeEarnerName,
		Grade:             raw.Grade,
		Date:              date,
		ActivityType:      raw.ActivityType,
		Description:       raw.Description,
		Units:             raw.Units,
		Hours:             nullDecimal(raw.Hours),
		HourlyRate:        nullDecimal(raw.HourlyRate),
		ClaimedAmount:     nullDecimal(raw.ClaimedAmount),
		Recoverable:       raw.Recoverable == nil || *raw.Recoverable,
		Disputed:          raw.Disputed,
		DisputeReason:     raw.DisputeReason,
		OfferedAmount:     nullDecimal(raw.OfferedAmount),
		DisputeReply:      raw.DisputeReply,
		BillLine:          raw.BillLine,
		SourceDocumentIDs: datatypes.JSONSlice[string](append([]string(nil), raw.SourceDocumentIDs...)),
	}
	return rec, nil
}

// Raw converts the stored record back into the shape the normalizer reads
func (w WorkItemRecord) Raw(caseRef string) costs.RawWorkItem {
	recoverable := w.Recoverable
	return costs.RawWorkItem{
		ID:                w.ID,
		CaseID:            caseRef,
		FeeEarnerID:       w.FeeEarnerID,
		FeeEarnerName:     w.FeeEarnerName,
		Grade:             w.Grade,
		Date:              w.Date.UTC().Format(recordDate),
		ActivityType:      w.ActivityType,
		Description:       w.Description,
		Units:             w.Units,
		Hours:             decimalPtr(w.Hours),
		HourlyRate:        decimalPtr(w.HourlyRate),
		ClaimedAmount:     decimalPtr(w.ClaimedAmount),
		Recoverable:       &recoverable,
		Disputed:          w.Disputed,
		DisputeReason:     w.DisputeReason,
		OfferedAmount:     decimalPtr(w.OfferedAmount),
		DisputeReply:      w.DisputeReply,
		BillLine:          w.BillLine,
		SourceDocumentIDs: append([]string(nil), w.SourceDocumentIDs...),
	}
}

func NewDisbursementRecord(caseID uint, raw costs.RawDisbursement) (DisbursementRecord, error) {
	date, err := costs.ParseDate(raw.Date)
	if err != nil {
		return DisbursementRecord{}, err
	}
	rec := DisbursementRecord{
		ID:                raw.ID,
		CaseID:            caseID,
		Date:              date,
		Type:              raw.Type,
		Description:       raw.Description,
		Payee:             raw.Payee,
		Net:               nullDecimal(raw.Net),
		VAT:               nullDecimal(raw.VAT),
		Gross:             nullDecimal(raw.Gross),
		Recoverable:       raw.Recoverable == nil || *raw.Recoverable,
		Disputed:          raw.Disputed,
		DisputeReason:     raw.DisputeReason,
		OfferedAmount:     nullDecimal(raw.OfferedAmount),
		DisputeReply:      raw.DisputeReply,
		VoucherDocumentID: raw.VoucherDocumentID,
	}
	if raw.VATExempt != nil {
		exempt := *raw.VATExempt
		rec.VATExempt = &exempt
	}
	return rec, nil
}

func (d DisbursementRecord) Raw(caseRef string) costs.RawDisbursement {
	recoverable := d.Recoverable
	raw := costs.RawDisbursement{
		ID:                d.ID,
		CaseID:            caseRef,
		Date:              d.Date.UTC().Format(recordDate),
		Type:              d.Type,
		Description:       d.Description,
		Payee:             d.Payee,
		Net:               decimalPtr(d.Net),
		VAT:               decimalPtr(d.VAT),
		Gross:             decimalPtr(d.Gross),
		Recoverable:       &recoverable,
		Disputed:          d.Disputed,
		DisputeReason:     d.DisputeReason,
		OfferedAmount:     decimalPtr(d.OfferedAmount),
		DisputeReply:      d.DisputeReply,
		VoucherDocumentID: d.VoucherDocumentID,
	}
	if d.VATExempt != nil {
		exempt := *d.VATExempt
		raw.VATExempt = &exempt
	}
	return raw
}

func NewRateEntryRecord(e costs.RateEntry) RateEntryRecord {
	return RateEntryRecord{
		EntryID:       e.ID,
		CaseRef:       e.CaseID,
		Grade:         string(e.Grade),
		FeeEarnerID:   e.FeeEarnerID,
		HourlyRate:    e.HourlyRate,
		EffectiveFrom: e.EffectiveFrom,
		EffectiveTo:   e.EffectiveTo,
	}
}

func (r RateEntryRecord) Entry() costs.RateEntry {
	e := costs.RateEntry{
		ID:            r.EntryID,
		CaseID:        r.CaseRef,
		Grade:         costs.Grade(r.Grade),
		FeeEarnerID:   r.FeeEarnerID,
		HourlyRate:    r.HourlyRate,
		EffectiveFrom: r.EffectiveFrom.UTC(),
	}
	if r.EffectiveTo != nil {
		to := r.EffectiveTo.UTC()
		e.EffectiveTo = &to
	}
	return e
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
