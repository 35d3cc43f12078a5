package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStore(db)
}

func createCase(t *testing.T, s *Store, ref string) *LegalCase {
	t.Helper()
	c := &LegalCase{Reference: ref, Title: "Smith v Jones", Court: "County Court at Manchester"}
	if err := s.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return c
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCaseFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := createCase(t, s, "F00MA123")

	units := 15
	exempt := true
	notRecoverable := false
	work := []costs.RawWorkItem{
		{ID: "wi-2", FeeEarnerID: "fe-1", Grade: "A", Date: "2021-03-05", Description: "Drafting", Units: &units, SourceDocumentIDs: []string{"doc-1"}},
		{ID: "wi-1", FeeEarnerID: "fe-2", Grade: "C", Date: "01.03.2021", Description: "Letter", Hours: decPtr("0.2"), HourlyRate: decPtr("250"), Recoverable: &notRecoverable},
	}
	for _, raw := range work {
		rec, err := NewWorkItemRecord(c.ID, raw)
		if err != nil {
			t.Fatalf("NewWorkItemRecord: %v", err)
		}
		if err := s.AddWorkItem(ctx, &rec); err != nil {
			t.Fatalf("AddWorkItem: %v", err)
		}
	}
	d, err := NewDisbursementRecord(c.ID, costs.RawDisbursement{
		ID: "d-1", Date: "2021-02-01", Type: "court_fee", Description: "Issue fee",
		Net: decPtr("455"), VATExempt: &exempt,
	})
	if err != nil {
		t.Fatalf("NewDisbursementRecord: %v", err)
	}
	if err := s.AddDisbursement(ctx, &d); err != nil {
		t.Fatalf("AddDisbursement: %v", err)
	}

	file, err := s.CaseFile(ctx, c)
	if err != nil {
		t.Fatalf("CaseFile: %v", err)
	}
	if file.ID != "F00MA123" {
		t.Errorf("file id = %s", file.ID)
	}
	if len(file.WorkItems) != 2 || len(file.Disbursements) != 1 {
		t.Fatalf("got %d work items and %d disbursements", len(file.WorkItems), len(file.Disbursements))
	}

	first := file.WorkItems[0]
	if first.ID != "wi-2" {
		t.Errorf("expected entry order kept, first is %s", first.ID)
	}
	if first.CaseID != "F00MA123" || first.Date != "2021-03-05" {
		t.Errorf("unexpected case or date: %s %s", first.CaseID, first.Date)
	}
	if first.Units == nil || *first.Units != 15 || first.Hours != nil || first.HourlyRate != nil {
		t.Errorf("unexpected time fields: %+v", first)
	}
	if len(first.SourceDocumentIDs) != 1 || first.SourceDocumentIDs[0] != "doc-1" {
		t.Errorf("source documents = %v", first.SourceDocumentIDs)
	}
	if first.Recoverable == nil || !*first.Recoverable {
		t.Error("expected recoverable by default")
	}

	second := file.WorkItems[1]
	if second.Date != "2021-03-01" {
		t.Errorf("date = %s", second.Date)
	}
	if second.Hours == nil || !second.Hours.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("hours = %v", second.Hours)
	}
	if second.Recoverable == nil || *second.Recoverable {
		t.Error("expected non-recoverable kept")
	}

	disb := file.Disbursements[0]
	if disb.Net == nil || !disb.Net.Equal(decimal.NewFromInt(455)) || disb.VAT != nil || disb.Gross != nil {
		t.Errorf("unexpected amounts: %+v", disb)
	}
	if disb.VATExempt == nil || !*disb.VATExempt {
		t.Error("expected vat exempt")
	}

	// The stored records build into a bill
	schedule, err := costs.NewRateSchedule([]costs.RateEntry{
		{ID: "firm-a", Grade: costs.GradeA, HourlyRate: decimal.NewFromInt(450), EffectiveFrom: mustDate(t, "2020-01-01")},
	})
	if err != nil {
		t.Fatalf("NewRateSchedule: %v", err)
	}
	bill, err := costs.BuildBill(file, schedule, costs.BillConfig{VATRate: decimal.RequireFromString("0.20")})
	if err != nil {
		t.Fatalf("BuildBill: %v", err)
	}
	if !bill.Totals.GrandTotal.Equal(decimal.NewFromInt(1265)) {
		t.Errorf("grand total = %s, want 1265", bill.Totals.GrandTotal)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := costs.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	return d
}

func TestDeleteWorkItemKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := createCase(t, s, "F00MA123")

	doc := &SourceDocument{ID: "doc-1", CaseID: c.ID, Filename: "attendance-note.pdf", DocumentType: "attendance_note"}
	if err := s.AddDocument(ctx, doc); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	rec, err := NewWorkItemRecord(c.ID, costs.RawWorkItem{
		ID: "wi-1", FeeEarnerID: "fe-1", Grade: "A", Date: "2021-03-05", Description: "Attendance",
		Hours: decPtr("1"), SourceDocumentIDs: []string{"doc-1"},
	})
	if err != nil {
		t.Fatalf("NewWorkItemRecord: %v", err)
	}
	if err := s.AddWorkItem(ctx, &rec); err != nil {
		t.Fatalf("AddWorkItem: %v", err)
	}

	if err := s.DeleteWorkItem(ctx, c.ID, "wi-1"); err != nil {
		t.Fatalf("DeleteWorkItem: %v", err)
	}

	var docs int64
	s.DB().Model(&SourceDocument{}).Count(&docs)
	if docs != 1 {
		t.Errorf("documents = %d, want 1", docs)
	}
	var items int64
	s.DB().Model(&WorkItemRecord{}).Count(&items)
	if items != 0 {
		t.Errorf("work items = %d, want 0", items)
	}

	if err := s.DeleteWorkItem(ctx, c.ID, "wi-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSetDispute(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := createCase(t, s, "F00MA123")
	other := createCase(t, s, "F00MA999")

	d, err := NewDisbursementRecord(c.ID, costs.RawDisbursement{
		ID: "d-1", Date: "2021-02-01", Type: "travel", Description: "Train", Net: decPtr("100"), VAT: decPtr("20"),
	})
	if err != nil {
		t.Fatalf("NewDisbursementRecord: %v", err)
	}
	if err := s.AddDisbursement(ctx, &d); err != nil {
		t.Fatalf("AddDisbursement: %v", err)
	}

	if err := s.SetReply(ctx, costs.KindDisbursement, c.ID, "d-1", "Standard class was booked"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("reply to an undisputed line: expected ErrRecordNotFound, got %v", err)
	}

	if err := s.SetDispute(ctx, costs.KindDisbursement, c.ID, "d-1", true, "First class travel", decPtr("60")); err != nil {
		t.Fatalf("SetDispute: %v", err)
	}
	if err := s.SetReply(ctx, costs.KindDisbursement, c.ID, "d-1", "Standard class was booked"); err != nil {
		t.Fatalf("SetReply: %v", err)
	}
	var got DisbursementRecord
	s.DB().First(&got, "id = ?", "d-1")
	if !got.Disputed || got.DisputeReason != "First class travel" || got.DisputeReply != "Standard class was booked" {
		t.Errorf("dispute not saved: %+v", got)
	}
	if !got.OfferedAmount.Valid || !got.OfferedAmount.Decimal.Equal(decimal.NewFromInt(60)) {
		t.Errorf("offered amount = %v", got.OfferedAmount)
	}
	raw := got.Raw(c.Reference)
	if raw.OfferedAmount == nil || raw.DisputeReply != "Standard class was booked" {
		t.Errorf("dispute terms lost on the way back: %+v", raw)
	}

	if err := s.SetDispute(ctx, costs.KindDisbursement, c.ID, "d-1", false, "ignored", decPtr("1")); err != nil {
		t.Fatalf("SetDispute: %v", err)
	}
	got = DisbursementRecord{}
	s.DB().First(&got, "id = ?", "d-1")
	if got.Disputed || got.DisputeReason != "" || got.DisputeReply != "" || got.OfferedAmount.Valid {
		t.Errorf("dispute not cleared: %+v", got)
	}

	if err := s.SetDispute(ctx, costs.KindDisbursement, other.ID, "d-1", true, "x", nil); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for another case, got %v", err)
	}
}

func TestDuplicateRecordsReportDuplicatedKey(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := createCase(t, s, "F00MA123")

	err := s.CreateCase(ctx, &LegalCase{Reference: "F00MA123"})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("duplicate case: expected gorm.ErrDuplicatedKey, got %v", err)
	}

	rec, err := NewWorkItemRecord(c.ID, costs.RawWorkItem{ID: "wi-1", Date: "2021-03-04"})
	if err != nil {
		t.Fatalf("NewWorkItemRecord: %v", err)
	}
	if err := s.AddWorkItem(ctx, &rec); err != nil {
		t.Fatalf("AddWorkItem: %v", err)
	}
	again := rec
	if err := s.AddWorkItem(ctx, &again); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("duplicate work item: expected gorm.ErrDuplicatedKey, got %v", err)
	}
}

func TestRateEntriesScopedToCase(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	to := mustDate(t, "2022-12-31")
	entries := []costs.RateEntry{
		{ID: "firm-a", Grade: costs.GradeA, HourlyRate: decimal.NewFromInt(400), EffectiveFrom: mustDate(t, "2020-01-01")},
		{ID: "case-1-a", CaseID: "case-1", Grade: costs.GradeA, HourlyRate: decimal.NewFromInt(450), EffectiveFrom: mustDate(t, "2020-01-01"), EffectiveTo: &to},
		{ID: "case-2-a", CaseID: "case-2", Grade: costs.GradeA, HourlyRate: decimal.NewFromInt(475), EffectiveFrom: mustDate(t, "2020-01-01")},
		{ID: "fe-1", FeeEarnerID: "fe-1", Grade: costs.GradeB, HourlyRate: decimal.RequireFromString("312.50"), EffectiveFrom: mustDate(t, "2020-01-01")},
	}
	n, skipped, err := s.AddRateEntries(ctx, entries)
	if err != nil {
		t.Fatalf("AddRateEntries: %v", err)
	}
	if n != 4 || len(skipped) != 0 {
		t.Errorf("inserted = %d, skipped %v, want 4 and none", n, skipped)
	}

	extra := costs.RateEntry{ID: "firm-c", Grade: costs.GradeC, HourlyRate: decimal.NewFromInt(200), EffectiveFrom: mustDate(t, "2020-01-01")}
	n, skipped, err = s.AddRateEntries(ctx, []costs.RateEntry{entries[0], extra, entries[1], extra})
	if err != nil {
		t.Fatalf("AddRateEntries again: %v", err)
	}
	if n != 1 {
		t.Errorf("re-inserted = %d, want 1", n)
	}
	if want := []string{"firm-a", "case-1-a", "firm-c"}; strings.Join(skipped, ",") != strings.Join(want, ",") {
		t.Errorf("skipped = %v, want %v", skipped, want)
	}

	got, err := s.RateEntries(ctx, "case-1")
	if err != nil {
		t.Fatalf("RateEntries: %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	want := []string{"firm-a", "case-1-a", "fe-1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}

	if got[1].EffectiveTo == nil || !got[1].EffectiveTo.Equal(to) {
		t.Errorf("effective_to = %v", got[1].EffectiveTo)
	}
	if !got[2].HourlyRate.Equal(decimal.RequireFromString("312.5")) {
		t.Errorf("hourly rate = %s", got[2].HourlyRate)
	}
}

func TestListCases(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	for _, ref := range []string{"A1", "A2", "A3"} {
		createCase(t, s, ref)
	}

	cases, total, err := s.ListCases(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if total != 3 || len(cases) != 2 {
		t.Errorf("total = %d, page = %d", total, len(cases))
	}

	cases, _, err = s.ListCases(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(cases) != 1 {
		t.Errorf("second page = %d", len(cases))
	}

	if _, err := s.FindCase(ctx, "missing"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestAddFeeEarner(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := createCase(t, s, "F00MA123")

	if err := s.AddFeeEarner(ctx, c, &FeeEarner{ID: "fe-1", Name: "J. Smith", Grade: "A"}); err != nil {
		t.Fatalf("AddFeeEarner: %v", err)
	}
	// Same person on a second case keeps one row
	other := createCase(t, s, "F00MA999")
	if err := s.AddFeeEarner(ctx, other, &FeeEarner{ID: "fe-1", Name: "J. Smith", Grade: "A"}); err != nil {
		t.Fatalf("AddFeeEarner: %v", err)
	}

	var count int64
	s.DB().Model(&FeeEarner{}).Count(&count)
	if count != 1 {
		t.Errorf("fee earners = %d, want 1", count)
	}

	loaded, err := s.FindCase(ctx, "F00MA999")
	if err != nil {
		t.Fatalf("FindCase: %v", err)
	}
	if len(loaded.FeeEarners) != 1 || loaded.FeeEarners[0].Name != "J. Smith" {
		t.Errorf("fee earners = %+v", loaded.FeeEarners)
	}

	if _, err := s.FindFeeEarner(ctx, "fe-2"); !errors.Is(err, ErrFeeEarnerNotFound) {
		t.Errorf("expected ErrFeeEarnerNotFound, got %v", err)
	}
}

func TestLoadRateSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	seed := `rates:
  - id: firm-a
    grade: Grade A
    hourly_rate: "450.00"
    effective_from: 2020-01-01
  - grade: C
    hourly_rate: 250
    effective_from: "01.01.2020"
    effective_to: "2023-12-31"
`
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadRateSeed(path)
	if err != nil {
		t.Fatalf("LoadRateSeed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Grade != costs.GradeA || !entries[0].HourlyRate.Equal(decimal.NewFromInt(450)) {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].ID == "" || entries[1].EffectiveTo == nil {
		t.Errorf("second entry = %+v", entries[1])
	}

	s := setupTestStore(t)
	n, err := SeedRates(context.Background(), s, path)
	if err != nil {
		t.Fatalf("SeedRates: %v", err)
	}
	if n != 2 {
		t.Errorf("seeded = %d, want 2", n)
	}
}

func TestParseRateSeedErrors(t *testing.T) {
	tests := []struct {
		name string
		seed string
	}{
		{"unknown grade", "rates:\n  - grade: Partner\n    hourly_rate: 100\n    effective_from: 2020-01-01\n"},
		{"bad rate", "rates:\n  - grade: A\n    hourly_rate: lots\n    effective_from: 2020-01-01\n"},
		{"bad date", "rates:\n  - grade: A\n    hourly_rate: 100\n    effective_from: soon\n"},
		{"zero rate", "rates:\n  - grade: A\n    hourly_rate: 0\n    effective_from: 2020-01-01\n"},
		{"not yaml", "rates: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRateSeed([]byte(tt.seed)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
