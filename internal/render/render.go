package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/shopspring/decimal"
)

//go:embed templates/*
var templateFS embed.FS

// Format is the output encoding of a rendered document
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Document is the kind of legal document rendered from a bill
type Document string

const (
	BillOfCosts     Document = "bill_of_costs"
	ScheduleOfCosts Document = "schedule_of_costs"
	PointsOfDispute Document = "points_of_dispute"
	PointsOfReply   Document = "points_of_reply"
)

var (
	ErrUnknownFormat   = errors.New("unknown output format")
	ErrUnknownDocument = errors.New("unknown document type")
	ErrNoBill          = errors.New("nothing to render")
)

// DefaultCurrencySymbol prefixes every money value
const DefaultCurrencySymbol = "£"

// Metadata is the case information shown in the header and footer
type Metadata struct {
	Court       string
	Title       string
	Reference   string
	Claimant    string
	Defendant   string
	FirmName    string
	Narrative   string
	GeneratedAt time.Time
}

type Options struct {
	Format         Format
	Document       Document
	CurrencySymbol string
}

type view struct {
	Bill     *costs.Bill
	Meta     Metadata
	Document Document
	Heading  string
}

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").Funcs(funcMap(DefaultCurrencySymbol)).ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.New("").Funcs(funcMap(DefaultCurrencySymbol)).ParseFS(templateFS, "templates/*.txt.tmpl"))
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML, "":
		return FormatHTML, nil
	case FormatText, "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func ParseDocument(s string) (Document, error) {
	switch Document(strings.ToLower(strings.TrimSpace(s))) {
	case BillOfCosts, "":
		return BillOfCosts, nil
	case ScheduleOfCosts, PointsOfDispute, PointsOfReply:
		return Document(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocument, s)
}

// Heading is the document title printed at the top of the page
func (d Document) Heading() string {
	switch d {
	case ScheduleOfCosts:
		return "Schedule of Costs"
	case PointsOfDispute:
		return "Points of Dispute"
	case PointsOfReply:
		return "Points of Reply"
	default:
		return "Bill of Costs"
	}
}

// Render binds a bill and its case metadata to the fixed document layout.
// Every figure shown comes from the bill; nothing is summed or rounded here.
func Render(bill *costs.Bill, meta Metadata, opts Options) ([]byte, error) {
	if bill == nil {
		return nil, ErrNoBill
	}
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(string(opts.Document))
	if err != nil {
		return nil, err
	}
	symbol := opts.CurrencySymbol
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	v := view{Bill: bill, Meta: meta, Document: doc, Heading: doc.Heading()}
	name := string(doc)

	var buf bytes.Buffer
	switch format {
	case FormatText:
		t, err := textTemplates.Clone()
		if err != nil {
			return nil, err
		}
		err = t.Funcs(funcMap(symbol)).ExecuteTemplate(&buf, name+".txt.tmpl", v)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
	default:
		t, err := htmlTemplates.Clone()
		if err != nil {
			return nil, err
		}
		err = t.Funcs(funcMap(symbol)).ExecuteTemplate(&buf, name+".html.tmpl", v)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

func funcMap(symbol string) map[string]any {
	return map[string]any{
		"date":  FormatDate,
		"money": func(d decimal.Decimal) string { return FormatMoney(symbol, d) },
		"offer": func(d *decimal.Decimal) string {
			if d == nil {
				return "Nil"
			}
			return FormatMoney(symbol, *d)
		},
		"hours": FormatHours,
		"wrap":  wrapText,
		"stamp": func(t time.Time) string { return t.Format("02.01.2006 15:04") },
		"pct":   func(d decimal.Decimal) string { return d.Shift(2).String() + "%" },
	}
}

// FormatDate prints a date as DD.MM.YYYY
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(costs.DateLayout)
}

// FormatMoney prints a value with the currency symbol and exactly two decimals.
// The value is expected to be rounded already.
func FormatMoney(symbol string, d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + symbol + d.Neg().StringFixed(2)
	}
	return symbol + d.StringFixed(2)
}

// FormatHours prints hours with at least two decimals. Hours that need more
// precision are printed in full.
func FormatHours(d decimal.Decimal) string {
	if d.Equal(d.Truncate(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// wrapText breaks s into lines of at most width runes at word boundaries.
// Words longer than a line are split. It always returns at least one line.
func wrapText(width int, s string) []string {
	var (
		lines []string
		line  []rune
	)
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > 0 {
			switch {
			case len(line) == 0 && len(w) <= width:
				line, w = w, nil
			case len(line) > 0 && len(line)+1+len(w) <= width:
				line = append(append(line, ' '), w...)
				w = nil
			case len(line) > 0:
				lines = append(lines, string(line))
				line = nil
			default:
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
		}
	}
	if len(line) > 0 || len(lines) == 0 {
		lines = append(lines, string(line))
	}
	return lines
}
