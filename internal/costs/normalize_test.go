package costs

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func rawWork(id string) RawWorkItem {
	return RawWorkItem{
		ID:          id,
		CaseID:      "case-1",
		FeeEarnerID: "fe-1",
		Grade:       "Grade A",
		Date:        "2021-03-04",
		Description: "Attendance on client",
		Units:       intPtr(15),
	}
}

func TestNormalizeWorkItem(t *testing.T) {
	n := NewNormalizer(firmSchedule(t))

	tests := []struct {
		name        string
		mutate      func(r *RawWorkItem)
		wantHours   string
		wantUnits   int
		wantRate    string
		wantClaimed string
	}{
		{
			name:        "units only",
			mutate:      func(r *RawWorkItem) {},
			wantHours:   "1.5",
			wantUnits:   15,
			wantRate:    "450",
			wantClaimed: "675.00",
		},
		{
			name: "hours only on a unit boundary",
			mutate: func(r *RawWorkItem) {
				r.Units = nil
				r.Hours = decPtr("0.3")
			},
			wantHours:   "0.3",
			wantUnits:   3,
			wantRate:    "450",
			wantClaimed: "135.00",
		},
		{
			name: "hours off a unit boundary keep zero units",
			mutate: func(r *RawWorkItem) {
				r.Units = nil
				r.Hours = decPtr("0.25")
			},
			wantHours:   "0.25",
			wantUnits:   0,
			wantRate:    "450",
			wantClaimed: "112.50",
		},
		{
			name: "units and hours within tolerance",
			mutate: func(r *RawWorkItem) {
				r.Hours = decPtr("1.55")
			},
			wantHours:   "1.5",
			wantUnits:   15,
			wantRate:    "450",
			wantClaimed: "675.00",
		},
		{
			name: "agreed rate overrides schedule",
			mutate: func(r *RawWorkItem) {
				r.HourlyRate = decPtr("333.33")
				r.Units = intPtr(1)
			},
			wantHours:   "0.1",
			wantUnits:   1,
			wantRate:    "333.33",
			wantClaimed: "33.33",
		},
		{
			name: "claimed amount rounds half to even",
			mutate: func(r *RawWorkItem) {
				r.HourlyRate = decPtr("100.25")
				r.Units = intPtr(1)
			},
			wantHours:   "0.1",
			wantUnits:   1,
			wantRate:    "100.25",
			wantClaimed: "10.02",
		},
		{
			name: "matching claimed amount accepted",
			mutate: func(r *RawWorkItem) {
				r.ClaimedAmount = decPtr("675.01")
			},
			wantHours:   "1.5",
			wantUnits:   15,
			wantRate:    "450",
			wantClaimed: "675.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawWork("wi-1")
			tt.mutate(&raw)

			got, err := n.NormalizeWorkItem(raw)
			if err != nil {
				t.Fatalf("NormalizeWorkItem: %v", err)
			}
			if !got.Hours.Equal(dec(tt.wantHours)) {
				t.Errorf("hours: got %s, want %s", got.Hours, tt.wantHours)
			}
			if got.Units != tt.wantUnits {
				t.Errorf("units: got %d, want %d", got.Units, tt.wantUnits)
			}
			assertMoney(t, "rate", got.HourlyRate, tt.wantRate)
			assertMoney(t, "claimed", got.ClaimedAmount, tt.wantClaimed)
			if !got.ClaimedAmount.Equal(RoundMoney(got.Hours.Mul(got.HourlyRate))) {
				t.Errorf("claimed %s is not round(hours * rate)", got.ClaimedAmount)
			}
			if !got.Recoverable {
				t.Error("expected recoverable by default")
			}
			if got.Grade != GradeA {
				t.Errorf("grade: got %s", got.Grade)
			}
		})
	}
}

func TestNormalizeWorkItemErrors(t *testing.T) {
	n := NewNormalizer(firmSchedule(t))

	tests := []struct {
		name   string
		mutate func(r *RawWorkItem)
		want   error
	}{
		{"missing id", func(r *RawWorkItem) { r.ID = " " }, ErrInvalidRecord},
		{"missing case", func(r *RawWorkItem) { r.CaseID = "" }, ErrInvalidRecord},
		{"missing fee earner", func(r *RawWorkItem) { r.FeeEarnerID = "" }, ErrInvalidRecord},
		{"unknown grade", func(r *RawWorkItem) { r.Grade = "Partner" }, ErrUnknownGrade},
		{"bad date", func(r *RawWorkItem) { r.Date = "31/31/2021" }, ErrInvalidRecord},
		{"missing description", func(r *RawWorkItem) { r.Description = "" }, ErrInvalidRecord},
		{"no time", func(r *RawWorkItem) { r.Units = nil }, ErrInvalidRecord},
		{"negative units", func(r *RawWorkItem) { r.Units = intPtr(-1) }, ErrInvalidRecord},
		{"zero hours", func(r *RawWorkItem) { r.Units = nil; r.Hours = decPtr("0") }, ErrInvalidRecord},
		{"units and hours disagree", func(r *RawWorkItem) { r.Hours = decPtr("1.6") }, ErrDataInconsistency},
		{"claimed amount disagrees", func(r *RawWorkItem) { r.ClaimedAmount = decPtr("680") }, ErrDataInconsistency},
		{"non positive agreed rate", func(r *RawWorkItem) { r.HourlyRate = decPtr("0") }, ErrInvalidRecord},
		{"no rate for grade", func(r *RawWorkItem) { r.Grade = "B" }, ErrRateNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawWork("wi-1")
			tt.mutate(&raw)

			got, err := n.NormalizeWorkItem(raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got.ID != "" {
				t.Errorf("expected zero entity on error, got %+v", got)
			}
		})
	}
}

func TestNormalizeWorkItemWithoutResolver(t *testing.T) {
	_, err := NewNormalizer(nil).NormalizeWorkItem(rawWork("wi-1"))

	var notFound *RateNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected RateNotFoundError, got %v", err)
	}
}

func TestNormalizeWorkItemDoesNotAliasInput(t *testing.T) {
	n := NewNormalizer(firmSchedule(t))
	raw := rawWork("wi-1")
	raw.SourceDocumentIDs = []string{"doc-1", "doc-2"}

	got, err := n.NormalizeWorkItem(raw)
	if err != nil {
		t.Fatalf("NormalizeWorkItem: %v", err)
	}

	raw.SourceDocumentIDs[0] = "changed"
	if got.SourceDocumentIDs[0] != "doc-1" {
		t.Errorf("entity changed through input slice: %v", got.SourceDocumentIDs)
	}

	offer := decimal.RequireFromString("100")
	disputed := got.WithDispute("excessive", &offer)
	disputed.SourceDocumentIDs[1] = "changed"
	offer = decimal.RequireFromString("1")
	if got.Disputed || got.SourceDocumentIDs[1] != "doc-2" {
		t.Errorf("WithDispute modified the original: %+v", got)
	}
	if disputed.OfferedAmount == nil || !disputed.OfferedAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("offered amount changed through caller's pointer: %v", disputed.OfferedAmount)
	}

	replied := disputed.WithReply("Time was reasonable")
	if disputed.DisputeReply != "" || replied.DisputeReply != "Time was reasonable" {
		t.Errorf("WithReply: original %q, copy %q", disputed.DisputeReply, replied.DisputeReply)
	}
}

func TestNormalizeDisbursement(t *testing.T) {
	tests := []struct {
		name       string
		raw        RawDisbursement
		wantNet    string
		wantVAT    string
		wantGross  string
		wantExempt bool
	}{
		{
			name: "court fee exempt by default",
			raw: RawDisbursement{ID: "d-1", CaseID: "case-1", Date: "01.02.2021", Type: "court_fee",
				Description: "Issue fee", Net: decPtr("154.00")},
			wantNet: "154", wantVAT: "0", wantGross: "154", wantExempt: true,
		},
		{
			name: "counsel fee with vat",
			raw: RawDisbursement{ID: "d-2", CaseID: "case-1", Date: "2021-02-03", Type: "Counsel's Fees",
				Description: "Advice", Net: decPtr("750"), VAT: decPtr("150")},
			wantNet: "750", wantVAT: "150", wantGross: "900",
		},
		{
			name: "net derived from gross",
			raw: RawDisbursement{ID: "d-3", CaseID: "case-1", Date: "03/02/2021", Type: "travel",
				Description: "Train", Gross: decPtr("60"), VAT: decPtr("10")},
			wantNet: "50", wantVAT: "10", wantGross: "60",
		},
		{
			name: "supplied gross within a penny",
			raw: RawDisbursement{ID: "d-4", CaseID: "case-1", Date: "2021-02-03", Type: "expert_fee",
				Description: "Report", Net: decPtr("100.00"), VAT: decPtr("20.00"), Gross: decPtr("120.01")},
			wantNet: "100", wantVAT: "20", wantGross: "120",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDisbursement(tt.raw)
			if err != nil {
				t.Fatalf("NormalizeDisbursement: %v", err)
			}
			assertMoney(t, "net", got.Net, tt.wantNet)
			assertMoney(t, "vat", got.VAT, tt.wantVAT)
			assertMoney(t, "gross", got.Gross, tt.wantGross)
			if got.VATExempt != tt.wantExempt {
				t.Errorf("exempt: got %v, want %v", got.VATExempt, tt.wantExempt)
			}
			if !got.Gross.Equal(RoundMoney(got.Net.Add(got.VAT))) {
				t.Errorf("gross %s is not round(net + vat)", got.Gross)
			}
		})
	}
}

func TestNormalizeDisbursementErrors(t *testing.T) {
	base := func() RawDisbursement {
		return RawDisbursement{ID: "d-1", CaseID: "case-1", Date: "2021-02-03", Type: "counsel_fee",
			Description: "Advice", Net: decPtr("750"), VAT: decPtr("150")}
	}

	tests := []struct {
		name   string
		mutate func(r *RawDisbursement)
		want   error
	}{
		{"gross disagrees", func(r *RawDisbursement) { r.Gross = decPtr("901") }, ErrDataInconsistency},
		{"exempt with vat", func(r *RawDisbursement) { r.VATExempt = boolPtr(true) }, ErrDataInconsistency},
		{"court fee carrying vat", func(r *RawDisbursement) { r.Type = "court fee" }, ErrDataInconsistency},
		{"unknown type", func(r *RawDisbursement) { r.Type = "lunch" }, ErrUnknownDisbursementType},
		{"no amounts", func(r *RawDisbursement) { r.Net = nil }, ErrInvalidRecord},
		{"negative vat", func(r *RawDisbursement) { r.VAT = decPtr("-1") }, ErrInvalidRecord},
		{"negative net", func(r *RawDisbursement) { r.Net = decPtr("-1"); r.VAT = nil }, ErrInvalidRecord},
		{"missing date", func(r *RawDisbursement) { r.Date = "" }, ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base()
			tt.mutate(&raw)
			if _, err := NormalizeDisbursement(raw); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalizeCaseCollectsEveryProblem(t *testing.T) {
	n := NewNormalizer(firmSchedule(t))

	bad := rawWork("wi-2")
	bad.Grade = "B"
	foreign := rawWork("wi-3")
	foreign.CaseID = "case-2"
	inherits := rawWork("wi-4")
	inherits.CaseID = ""

	_, err := n.NormalizeCase(CaseFile{
		ID:        "case-1",
		WorkItems: []RawWorkItem{rawWork("wi-1"), bad, foreign, inherits},
		Disbursements: []RawDisbursement{
			{ID: "d-1", Date: "2021-01-01", Type: "travel", Description: "Taxi", Net: decPtr("10"), Gross: decPtr("99")},
		},
	})

	var incomplete *IncompleteBillError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteBillError, got %v", err)
	}
	ids := map[string]RecordKind{}
	for _, p := range incomplete.Problems {
		ids[p.RecordID] = p.Kind
	}
	want := map[string]RecordKind{"wi-2": KindWorkItem, "wi-3": KindWorkItem, "d-1": KindDisbursement}
	if len(ids) != len(want) {
		t.Fatalf("problems: got %v, want %v", ids, want)
	}
	for id, kind := range want {
		if ids[id] != kind {
			t.Errorf("problem %s: got %q, want %q", id, ids[id], kind)
		}
	}
	if !errors.Is(err, ErrRateNotFound) || !errors.Is(err, ErrDataInconsistency) {
		t.Error("expected causes to be reachable through the incomplete bill error")
	}
}
