package costs

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillConfig carries the values a bill depends on that change over time
type BillConfig struct {
	VATRate decimal.Decimal
}

func (c BillConfig) Validate() error {
	if c.VATRate.IsNegative() || c.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidVATRate
	}
	return nil
}

// WorkLine is a work item as it appears on the bill
type WorkLine struct {
	No int `json:"no"`
	WorkItem
}

// WorkGroup is the section of a bill for one fee earner grade
type WorkGroup struct {
	Grade    Grade           `json:"grade"`
	Label    string          `json:"label"`
	Lines    []WorkLine      `json:"lines"`
	Hours    decimal.Decimal `json:"hours"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type DisbursementLine struct {
	No int `json:"no"`
	Disbursement
}

// DisbursementGroup is the section of a bill for one disbursement type.
// Subtotal is what the section adds to the disbursements total.
type DisbursementGroup struct {
	Type     DisbursementType   `json:"type"`
	Label    string             `json:"label"`
	Lines    []DisbursementLine `json:"lines"`
	Net      decimal.Decimal    `json:"net"`
	VAT      decimal.Decimal    `json:"vat"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

// DisputedLine is a claimed line that the paying party has challenged.
// Offered is their alternative figure; nil means nothing is offered.
type DisputedLine struct {
	No          int              `json:"no"`
	Kind        RecordKind       `json:"kind"`
	RecordID    string           `json:"record_id"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	Reason      string           `json:"reason"`
	Amount      decimal.Decimal  `json:"amount"`
	Offered     *decimal.Decimal `json:"offered,omitempty"`
	Reply       string           `json:"reply,omitempty"`
}

// ActivityTotal summarises the recoverable work of one activity type
// across grades, for the Schedule of Costs.
type ActivityTotal struct {
	Activity string          `json:"activity"`
	Label    string          `json:"label"`
	Hours    decimal.Decimal `json:"hours"`
	Amount   decimal.Decimal `json:"amount"`
}

type Totals struct {
	ProfitCosts        decimal.Decimal `json:"profit_costs"`
	VATOnProfitCosts   decimal.Decimal `json:"vat_on_profit_costs"`
	Disbursements      decimal.Decimal `json:"disbursements"`
	VATOnDisbursements decimal.Decimal `json:"vat_on_disbursements"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

// Bill is the aggregate a Bill of Costs is rendered from. It is derived from
// the case snapshot and holds every figure the document shows.
type Bill struct {
	CaseID                string              `json:"case_id"`
	VATRate               decimal.Decimal     `json:"vat_rate"`
	WorkGroups            []WorkGroup         `json:"work_groups"`
	DisbursementGroups    []DisbursementGroup `json:"disbursement_groups"`
	ExcludedWork          []WorkItem          `json:"excluded_work"`
	ExcludedDisbursements []Disbursement      `json:"excluded_disbursements"`
	Activities            []ActivityTotal     `json:"activities"`
	Disputes              []DisputedLine      `json:"disputes"`
	DisputedTotal         decimal.Decimal     `json:"disputed_total"`
	OfferedTotal          decimal.Decimal     `json:"offered_total"`
	Totals                Totals              `json:"totals"`
}

// BuildBill normalizes and prices every record in the file and aggregates the
// result. Any record that cannot be normalized blocks the whole bill.
func BuildBill(file CaseFile, rates RateResolver, cfg BillConfig) (*Bill, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := NewNormalizer(rates).NormalizeCase(file)
	if err != nil {
		return nil, err
	}
	return Assemble(c, cfg)
}

// Assemble groups, orders and totals already normalized entities. Recoverable
// work items whose amount does not follow from their time and rate are
// reported rather than summed.
func Assemble(c Case, cfg BillConfig) (*Bill, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		work          []WorkItem
		disbursements []Disbursement
		problems      []ItemProblem
	)
	bill := &Bill{
		CaseID:                c.ID,
		VATRate:               cfg.VATRate,
		WorkGroups:            []WorkGroup{},
		DisbursementGroups:    []DisbursementGroup{},
		ExcludedWork:          []WorkItem{},
		ExcludedDisbursements: []Disbursement{},
		Activities:            []ActivityTotal{},
		Disputes:              []DisputedLine{},
	}

	for _, w := range c.WorkItems {
		if !w.Recoverable {
			bill.ExcludedWork = append(bill.ExcludedWork, w)
			continue
		}
		if err := checkPriced(w); err != nil {
			problems = append(problems, ItemProblem{
				RecordID: w.ID,
				Kind:     KindWorkItem,
				Grade:    w.Grade,
				Date:     w.Date,
				Err:      err,
			})
			continue
		}
		work = append(work, w)
	}
	for _, d := range c.Disbursements {
		if !d.Recoverable {
			bill.ExcludedDisbursements = append(bill.ExcludedDisbursements, d)
			continue
		}
		if gross := RoundMoney(d.Net.Add(d.VAT)); !d.Gross.Equal(gross) {
			problems = append(problems, ItemProblem{
				RecordID: d.ID,
				Kind:     KindDisbursement,
				Date:     d.Date,
				Err: &DataInconsistencyError{
					RecordID: d.ID, CaseID: d.CaseID, Field: "gross",
					Supplied: d.Gross, Computed: gross,
				},
			})
			continue
		}
		disbursements = append(disbursements, d)
	}
	if len(problems) > 0 {
		return nil, &IncompleteBillError{CaseID: c.ID, Problems: problems}
	}

	line := 0
	for _, b := range partition(work,
		func(w WorkItem) Grade { return w.Grade },
		func(w WorkItem) time.Time { return w.Date }) {
		g := WorkGroup{Grade: b.key, Label: b.key.Label(), Hours: decimal.Zero, Subtotal: decimal.Zero}
		for _, w := range b.items {
			line++
			g.Lines = append(g.Lines, WorkLine{No: line, WorkItem: w})
			g.Hours = g.Hours.Add(w.Hours)
			g.Subtotal = g.Subtotal.Add(w.ClaimedAmount)
			bill.addDispute(line, w.Disputed, DisputedLine{
				Kind: KindWorkItem, RecordID: w.ID, Date: w.Date,
				Description: w.Description, Reason: w.DisputeReason, Amount: w.ClaimedAmount,
				Offered: w.OfferedAmount, Reply: w.DisputeReply,
			})
		}
		g.Subtotal = RoundMoney(g.Subtotal)
		bill.WorkGroups = append(bill.WorkGroups, g)
	}

	for _, b := range partition(disbursements,
		func(d Disbursement) DisbursementType { return d.Type },
		func(d Disbursement) time.Time { return d.Date }) {
		g := DisbursementGroup{Type: b.key, Label: b.key.Label(), Net: decimal.Zero, VAT: decimal.Zero, Subtotal: decimal.Zero}
		for _, d := range b.items {
			line++
			g.Lines = append(g.Lines, DisbursementLine{No: line, Disbursement: d})
			g.Net = g.Net.Add(d.Net)
			if !d.VATExempt {
				g.VAT = g.VAT.Add(d.VAT)
			}
			g.Subtotal = g.Subtotal.Add(d.ClaimedAmount())
			bill.addDispute(line, d.Disputed, DisputedLine{
				Kind: KindDisbursement, RecordID: d.ID, Date: d.Date,
				Description: d.Description, Reason: d.DisputeReason, Amount: d.ClaimedAmount(),
				Offered: d.OfferedAmount, Reply: d.DisputeReply,
			})
		}
		g.Net = RoundMoney(g.Net)
		g.VAT = RoundMoney(g.VAT)
		g.Subtotal = RoundMoney(g.Subtotal)
		bill.DisbursementGroups = append(bill.DisbursementGroups, g)
	}

	bill.Activities = activityTotals(bill.WorkGroups)
	bill.Totals = computeTotals(bill, cfg.VATRate)
	return bill, nil
}

// OtherActivity is the label of work recorded without an activity type
const OtherActivity = "Other work"

// activityTotals groups the billed work lines by activity type, case
// insensitively, in order of first appearance on the bill.
func activityTotals(groups []WorkGroup) []ActivityTotal {
	index := make(map[string]int)
	out := []ActivityTotal{}
	for _, g := range groups {
		for _, l := range g.Lines {
			key := strings.ToLower(l.ActivityType)
			i, ok := index[key]
			if !ok {
				label := l.ActivityType
				if label == "" {
					label = OtherActivity
				}
				i = len(out)
				index[key] = i
				out = append(out, ActivityTotal{Activity: key, Label: label, Hours: decimal.Zero, Amount: decimal.Zero})
			}
			out[i].Hours = out[i].Hours.Add(l.Hours)
			out[i].Amount = out[i].Amount.Add(l.ClaimedAmount)
		}
	}
	for i := range out {
		out[i].Amount = RoundMoney(out[i].Amount)
	}
	return out
}

func (b *Bill) addDispute(no int, disputed bool, l DisputedLine) {
	if !disputed {
		return
	}
	l.No = no
	b.Disputes = append(b.Disputes, l)
	b.DisputedTotal = RoundMoney(b.DisputedTotal.Add(l.Amount))
	if l.Offered != nil {
		b.OfferedTotal = RoundMoney(b.OfferedTotal.Add(*l.Offered))
	}
}

// computeTotals sums the already rounded group subtotals. The grand total is a
// plain sum of the four rounded figures and is never rounded again.
func computeTotals(b *Bill, vatRate decimal.Decimal) Totals {
	profit := decimal.Zero
	for _, g := range b.WorkGroups {
		profit = profit.Add(g.Subtotal)
	}
	profit = RoundMoney(profit)

	disb, disbVAT := decimal.Zero, decimal.Zero
	for _, g := range b.DisbursementGroups {
		disb = disb.Add(g.Subtotal)
		disbVAT = disbVAT.Add(g.VAT)
	}
	disb = RoundMoney(disb)
	disbVAT = RoundMoney(disbVAT)

	vatProfit := RoundMoney(profit.Mul(vatRate))

	return Totals{
		ProfitCosts:        profit,
		VATOnProfitCosts:   vatProfit,
		Disbursements:      disb,
		VATOnDisbursements: disbVAT,
		GrandTotal:         sumMoney(profit, vatProfit, disb, disbVAT),
	}
}

func checkPriced(w WorkItem) error {
	if !w.HourlyRate.IsPositive() {
		return &RateNotFoundError{CaseID: w.CaseID, FeeEarnerID: w.FeeEarnerID, Grade: w.Grade, Date: w.Date}
	}
	if want := RoundMoney(w.Hours.Mul(w.HourlyRate)); !w.ClaimedAmount.Equal(want) {
		return &DataInconsistencyError{
			RecordID: w.ID, CaseID: w.CaseID, Field: "claimed_amount",
			Supplied: w.ClaimedAmount, Computed: want,
		}
	}
	return nil
}

type bucket[K comparable, T any] struct {
	key      K
	items    []T
	earliest time.Time
}

// partition groups items by key. Buckets are ordered by their earliest date,
// ties kept in order of first appearance; items within a bucket are ordered by
// date, ties kept in input order.
func partition[K comparable, T any](items []T, keyOf func(T) K, dateOf func(T) time.Time) []bucket[K, T] {
	index := make(map[K]int)
	var buckets []bucket[K, T]
	for _, it := range items {
		k := keyOf(it)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, bucket[K, T]{key: k, earliest: dateOf(it)})
		}
		buckets[i].items = append(buckets[i].items, it)
		if d := dateOf(it); d.Before(buckets[i].earliest) {
			buckets[i].earliest = d
		}
	}

	for i := range buckets {
		its := buckets[i].items
		sort.SliceStable(its, func(a, b int) bool {
			return dateOf(its[a]).Before(dateOf(its[b]))
		})
	}
	sort.SliceStable(buckets, func(a, b int) bool {
		return buckets[a].earliest.Before(buckets[b].earliest)
	})
	return buckets
}
