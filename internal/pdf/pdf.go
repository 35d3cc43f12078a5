package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JustJay7/legal-costs-drafter/pkg/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var ErrPrinterClosed = errors.New("pdf printer is closed")

// A4 in inches
const (
	paperWidth  = 8.27
	paperHeight = 11.69
)

type Options struct {
	Headless    bool
	BrowserPath string
	Timeout     time.Duration
	Debug       bool
}

// Printer renders HTML documents to PDF in a headless browser
type Printer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	logger   *logger.Logger
	mu       sync.Mutex
	closed   bool
}

// NewPrinter launches the browser used for every print
func NewPrinter(opts Options, log *logger.Logger) (*Printer, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("no-sandbox")

	if opts.BrowserPath != "" {
		l = l.Bin(opts.BrowserPath)
	}
	if opts.Debug {
		l = l.Devtools(true)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log.Info("PDF printer ready", "headless", opts.Headless)
	return &Printer{
		browser:  browser,
		launcher: l,
		timeout:  timeout,
		logger:   log,
	}, nil
}

// Print loads html into a fresh page and prints it on A4
func (p *Printer) Print(ctx context.Context, html []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPrinterClosed
	}

	printCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page, err := p.browser.Context(printCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			p.logger.Warn("Failed to close page", "error", err)
		}
	}()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		p.logger.Warn("Document load incomplete", "error", err)
	}

	width, height := paperWidth, paperHeight
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		PaperWidth:        &width,
		PaperHeight:       &height,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}

	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	return out, nil
}

func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	err := p.browser.Close()
	p.launcher.Kill()
	return err
}
