package billing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/cache"
	"github.com/JustJay7/legal-costs-drafter/internal/config"
	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/JustJay7/legal-costs-drafter/internal/database"
	"github.com/JustJay7/legal-costs-drafter/internal/narrative"
	"github.com/JustJay7/legal-costs-drafter/internal/render"
	"github.com/JustJay7/legal-costs-drafter/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPDFDisabled = errors.New("pdf export is not enabled")
	ErrInvalidCase = errors.New("invalid case")
)

// Printer turns a rendered HTML document into a PDF
type Printer interface {
	Print(ctx context.Context, html []byte) ([]byte, error)
}

// Service runs the pipeline from stored records to a rendered bill
type Service struct {
	store    *database.Store
	cache    cache.Cache
	printer  Printer
	narrator narrative.Generator
	logger   *logger.Logger
	cfg      *config.Config
	now      func() time.Time

	// rateGen is bumped whenever stored rates change; a schedule loaded
	// under an older generation is not cached.
	rateMu  sync.Mutex
	rateGen uint64
}

// NewService builds the service. printer and narrator may be nil, which
// disables PDF export and the narrative section.
func NewService(store *database.Store, c cache.Cache, printer Printer, narrator narrative.Generator, log *logger.Logger, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		cache:    c,
		printer:  printer,
		narrator: narrator,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WorkItemResult is what ingesting a work item produced. Item is nil when no
// rate applies yet; Warning then says why.
type WorkItemResult struct {
	Record  database.WorkItemRecord `json:"record"`
	Item    *costs.WorkItem         `json:"normalized,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

type DisbursementResult struct {
	Record database.DisbursementRecord `json:"record"`
	Item   costs.Disbursement          `json:"normalized"`
}

func (s *Service) CreateCase(ctx context.Context, c *database.LegalCase) error {
	c.Reference = strings.TrimSpace(c.Reference)
	if c.Reference == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidCase)
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return err
	}
	s.logger.Info("Case created", "reference", c.Reference)
	return nil
}

func (s *Service) Case(ctx context.Context, ref string) (*database.LegalCase, error) {
	return s.store.FindCase(ctx, ref)
}

func (s *Service) ListCases(ctx context.Context, page, limit int) ([]database.LegalCase, int64, error) {
	return s.store.ListCases(ctx, page, limit)
}

// AddFeeEarner records a fee earner on the case. The grade is stored as its tag.
func (s *Service) AddFeeEarner(ctx context.Context, ref string, fe *database.FeeEarner) error {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return err
	}
	grade, err := costs.ParseGrade(fe.Grade)
	if err != nil {
		return &costs.ValidationError{RecordID: fe.ID, CaseID: ref, Field: "grade", Reason: fmt.Sprintf("%q is not a recognised grade", fe.Grade), Err: err}
	}
	fe.Grade = string(grade)
	if fe.ID == "" {
		fe.ID = uuid.NewString()
	}
	return s.store.AddFeeEarner(ctx, c, fe)
}

func (s *Service) AddDocument(ctx context.Context, ref string, doc *database.SourceDocument) error {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CaseID = c.ID
	return s.store.AddDocument(ctx, doc)
}

// AddWorkItem checks a work record at the boundary and stores it. A record no
// rate applies to is kept with a warning since rates can be added later; any
// other normalization failure rejects it.
func (s *Service) AddWorkItem(ctx context.Context, ref string, raw costs.RawWorkItem) (*WorkItemResult, error) {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := claimRecord(&raw.ID, &raw.CaseID, ref); err != nil {
		return nil, err
	}
	s.fillFromFeeEarner(ctx, c, &raw)
	if g, err := costs.ParseGrade(raw.Grade); err == nil {
		raw.Grade = string(g)
	}

	schedule, err := s.Schedule(ctx, ref)
	if err != nil {
		return nil, err
	}

	result := &WorkItemResult{}
	item, err := costs.NewNormalizer(schedule).NormalizeWorkItem(raw)
	switch {
	case errors.Is(err, costs.ErrRateNotFound):
		result.Warning = err.Error()
		s.logger.Warn("Work item has no applicable rate yet", "case", ref, "id", raw.ID, "error", err)
	case err != nil:
		return nil, err
	default:
		result.Item = &item
	}

	rec, err := database.NewWorkItemRecord(c.ID, raw)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddWorkItem(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to save work item %s: %w", raw.ID, err)
	}
	result.Record = rec
	return result, nil
}

func (s *Service) AddDisbursement(ctx context.Context, ref string, raw costs.RawDisbursement) (*DisbursementResult, error) {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := claimRecord(&raw.ID, &raw.CaseID, ref); err != nil {
		return nil, err
	}
	if t, err := costs.ParseDisbursementType(raw.Type); err == nil {
		raw.Type = string(t)
	}

	d, err := costs.NormalizeDisbursement(raw)
	if err != nil {
		return nil, err
	}

	rec, err := database.NewDisbursementRecord(c.ID, raw)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddDisbursement(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to save disbursement %s: %w", raw.ID, err)
	}
	return &DisbursementResult{Record: rec, Item: d}, nil
}

func (s *Service) DeleteWorkItem(ctx context.Context, ref, id string) error {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return err
	}
	return s.store.DeleteWorkItem(ctx, c.ID, id)
}

// SetDispute records the paying party's challenge to a line, or withdraws it.
// offered is the alternative figure they propose and may be nil.
func (s *Service) SetDispute(ctx context.Context, ref string, kind costs.RecordKind, id string, disputed bool, reason string, offered *decimal.Decimal) error {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return err
	}
	if offered != nil {
		if offered.IsNegative() {
			return &costs.ValidationError{RecordID: id, CaseID: ref, Field: "offered_amount", Reason: "must not be negative"}
		}
		o := costs.RoundMoney(*offered)
		offered = &o
	}
	return s.store.SetDispute(ctx, kind, c.ID, id, disputed, strings.TrimSpace(reason), offered)
}

// SetReply records the receiving party's answer to a disputed line
func (s *Service) SetReply(ctx context.Context, ref string, kind costs.RecordKind, id string, reply string) error {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return &costs.ValidationError{RecordID: id, CaseID: ref, Field: "reply", Reason: "is required"}
	}
	return s.store.SetReply(ctx, kind, c.ID, id, reply)
}

// AddRates validates and stores rate entries, then drops cached schedules
// they could affect. It returns the number stored and the ids skipped
// because they were already on the schedule.
func (s *Service) AddRates(ctx context.Context, entries []costs.RateEntry) (int64, []string, error) {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}
	if _, err := costs.NewRateSchedule(entries); err != nil {
		return 0, nil, err
	}

	n, skipped, err := s.store.AddRateEntries(ctx, entries)
	if err != nil {
		return 0, nil, err
	}

	s.rateMu.Lock()
	s.rateGen++
	firmWide := false
	for _, e := range entries {
		if e.CaseID == "" {
			firmWide = true
			break
		}
		s.cache.Delete(e.CaseID)
	}
	if firmWide {
		s.cache.Flush()
	}
	s.rateMu.Unlock()

	if len(skipped) > 0 {
		s.logger.Warn("Rate entries already on the schedule", "ids", skipped)
	}
	s.logger.Info("Rate entries added", "count", n)
	return n, skipped, nil
}

// Schedule returns the rates that apply to a case, from cache when possible
func (s *Service) Schedule(ctx context.Context, ref string) (*costs.RateSchedule, error) {
	if schedule, ok := s.cache.Get(ref); ok {
		return schedule, nil
	}

	s.rateMu.Lock()
	gen := s.rateGen
	s.rateMu.Unlock()

	entries, err := s.store.RateEntries(ctx, ref)
	if err != nil {
		return nil, err
	}
	schedule, err := costs.NewRateSchedule(entries)
	if err != nil {
		return nil, fmt.Errorf("stored rate schedule for %s is invalid: %w", ref, err)
	}

	s.rateMu.Lock()
	if gen == s.rateGen {
		s.cache.Set(ref, schedule)
	}
	s.rateMu.Unlock()
	return schedule, nil
}

// Bill builds the aggregate for a case from its current records
func (s *Service) Bill(ctx context.Context, ref string) (*costs.Bill, *database.LegalCase, error) {
	c, err := s.store.FindCase(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.store.CaseFile(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	schedule, err := s.Schedule(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	bill, err := costs.BuildBill(file, schedule, s.cfg.Bill())
	if err != nil {
		return nil, c, err
	}
	return bill, c, nil
}

// Request names the document to produce and who asked for it
type Request struct {
	Format   render.Format
	Document render.Document
	ClientIP string
}

// Render builds and renders the requested document
func (s *Service) Render(ctx context.Context, ref string, req Request) ([]byte, error) {
	out, bill, err := s.render(ctx, ref, req)
	s.logBill(ctx, ref, req, bill, "", err)
	return out, err
}

// PDF renders the document as HTML and prints it
func (s *Service) PDF(ctx context.Context, ref string, req Request) ([]byte, error) {
	if s.printer == nil {
		return nil, ErrPDFDisabled
	}
	req.Format = render.FormatHTML

	html, bill, err := s.render(ctx, ref, req)
	var out []byte
	if err == nil {
		out, err = s.printer.Print(ctx, html)
	}
	s.logBill(ctx, ref, Request{Format: "pdf", Document: req.Document, ClientIP: req.ClientIP}, bill, "", err)
	return out, err
}

// Save renders the document and writes it under OUTPUT_DIR/bills
func (s *Service) Save(ctx context.Context, ref string, req Request) (string, error) {
	out, bill, err := s.render(ctx, ref, req)
	var path string
	if err == nil {
		path, err = s.write(ref, req, out)
	}
	s.logBill(ctx, ref, req, bill, path, err)
	return path, err
}

func (s *Service) render(ctx context.Context, ref string, req Request) ([]byte, *costs.Bill, error) {
	bill, c, err := s.Bill(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	meta := render.Metadata{
		Court:       c.Court,
		Title:       c.Title,
		Reference:   c.Reference,
		Claimant:    c.Claimant,
		Defendant:   c.Defendant,
		FirmName:    s.cfg.FirmName,
		Narrative:   s.narrative(ctx, c),
		GeneratedAt: s.now(),
	}
	out, err := render.Render(bill, meta, render.Options{
		Format:         req.Format,
		Document:       req.Document,
		CurrencySymbol: s.cfg.CurrencySymbol,
	})
	if err != nil {
		return nil, bill, err
	}
	return out, bill, nil
}

// narrative is best effort; the document is produced without it on failure
func (s *Service) narrative(ctx context.Context, c *database.LegalCase) string {
	if s.narrator == nil || c.Description == "" {
		return ""
	}
	text, err := s.narrator.Background(ctx, narrative.CaseSummary{
		Reference:   c.Reference,
		Title:       c.Title,
		Court:       c.Court,
		Claimant:    c.Claimant,
		Defendant:   c.Defendant,
		Description: c.Description,
	})
	if err != nil {
		s.logger.Warn("Narrative omitted", "case", c.Reference, "error", err)
		return ""
	}
	return text
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (s *Service) write(ref string, req Request, out []byte) (string, error) {
	doc, err := render.ParseDocument(string(req.Document))
	if err != nil {
		return "", err
	}
	format, err := render.ParseFormat(string(req.Format))
	if err != nil {
		return "", err
	}
	ext := "html"
	if format == render.FormatText {
		ext = "txt"
	}

	dir := filepath.Join(s.cfg.OutputDir, "bills")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.%s", doc, unsafeFileChars.ReplaceAllString(ref, "_"), s.now().Format("20060102"), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("Bill saved", "case", ref, "path", path)
	return path, nil
}

func (s *Service) logBill(ctx context.Context, ref string, req Request, bill *costs.Bill, path string, err error) {
	entry := &database.BillLog{
		CaseRef:     ref,
		Document:    string(req.Document),
		Format:      string(req.Format),
		Success:     err == nil,
		OutputPath:  path,
		GeneratedAt: s.now(),
		IPAddress:   req.ClientIP,
	}
	if entry.Document == "" {
		entry.Document = string(render.BillOfCosts)
	}
	if entry.Format == "" {
		entry.Format = string(render.FormatHTML)
	}
	if bill != nil {
		entry.GrandTotal = bill.Totals.GrandTotal
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
		if !errors.Is(err, database.ErrCaseNotFound) {
			s.logger.Error("Bill generation failed", "case", ref, "error", err)
		}
	}

	if logErr := s.store.LogBill(ctx, entry); logErr != nil {
		s.logger.Error("Failed to save bill log", "case", ref, "error", logErr)
	}
}

// claimRecord gives the record an id if it has none and ties it to the case
func claimRecord(id, caseID *string, ref string) error {
	if strings.TrimSpace(*id) == "" {
		*id = uuid.NewString()
	}
	switch strings.TrimSpace(*caseID) {
	case "":
		*caseID = ref
	case ref:
	default:
		return &costs.ValidationError{
			RecordID: *id,
			CaseID:   *caseID,
			Field:    "case_id",
			Reason:   fmt.Sprintf("belongs to another case than %s", ref),
		}
	}
	return nil
}

// fillFromFeeEarner completes grade and name from the fee earner record when
// the work item leaves them out.
func (s *Service) fillFromFeeEarner(ctx context.Context, c *database.LegalCase, raw *costs.RawWorkItem) {
	if raw.FeeEarnerID == "" || (raw.Grade != "" && raw.FeeEarnerName != "") {
		return
	}
	var fe *database.FeeEarner
	for i := range c.FeeEarners {
		if c.FeeEarners[i].ID == raw.FeeEarnerID {
			fe = &c.FeeEarners[i]
			break
		}
	}
	if fe == nil {
		found, err := s.store.FindFeeEarner(ctx, raw.FeeEarnerID)
		if err != nil {
			return
		}
		fe = found
	}
	if raw.Grade == "" {
		raw.Grade = fe.Grade
	}
	if raw.FeeEarnerName == "" {
		raw.FeeEarnerName = fe.Name
	}
}
