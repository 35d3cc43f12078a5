package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/billing"
	"github.com/JustJay7/legal-costs-drafter/internal/cache"
	"github.com/JustJay7/legal-costs-drafter/internal/config"
	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/JustJay7/legal-costs-drafter/internal/database"
	"github.com/JustJay7/legal-costs-drafter/internal/render"
	"github.com/JustJay7/legal-costs-drafter/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	db      *gorm.DB
	cache   cache.Cache
	service *billing.Service
	logger  *logger.Logger
	cfg     *config.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, cache cache.Cache, service *billing.Service, logger *logger.Logger, cfg *config.Config) *Handlers {
	return &Handlers{
		db:      db,
		cache:   cache,
		service: service,
		logger:  logger,
		cfg:     cfg,
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	var count int64
	dbHealthy := h.db.Model(&database.LegalCase{}).Count(&count).Error == nil

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealthy,
		"cache":    h.cache.Stats(),
		"time":     time.Now().Unix(),
	})
}

// CacheStats returns rate schedule cache statistics
func (h *Handlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.cache.Stats(),
	})
}

// ListCases returns one page of cases
func (h *Handlers) ListCases(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	cases, total, err := h.service.ListCases(c.Request.Context(), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cases,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *Handlers) CreateCase(c *gin.Context) {
	var req struct {
		Reference   string `json:"reference" binding:"required"`
		Title       string `json:"title"`
		Court       string `json:"court"`
		Claimant    string `json:"claimant"`
		Defendant   string `json:"defendant"`
		Description string `json:"description"`
	}
	if !h.bind(c, &req) {
		return
	}

	legalCase := &database.LegalCase{
		Reference:   req.Reference,
		Title:       req.Title,
		Court:       req.Court,
		Claimant:    req.Claimant,
		Defendant:   req.Defendant,
		Description: req.Description,
	}
	if err := h.service.CreateCase(c.Request.Context(), legalCase); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    legalCase,
	})
}

func (h *Handlers) GetCase(c *gin.Context) {
	legalCase, err := h.service.Case(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    legalCase,
	})
}

func (h *Handlers) AddFeeEarner(c *gin.Context) {
	var req struct {
		ID    string `json:"id"`
		Name  string `json:"name" binding:"required"`
		Grade string `json:"grade" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}

	fe := &database.FeeEarner{ID: req.ID, Name: req.Name, Grade: req.Grade}
	if err := h.service.AddFeeEarner(c.Request.Context(), c.Param("ref"), fe); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    fe,
	})
}

// AddDocument registers the metadata of a source document
func (h *Handlers) AddDocument(c *gin.Context) {
	var req struct {
		ID           string `json:"id"`
		Filename     string `json:"filename" binding:"required"`
		DocumentType string `json:"document_type"`
		ContentType  string `json:"content_type"`
		Path         string `json:"path"`
	}
	if !h.bind(c, &req) {
		return
	}

	doc := &database.SourceDocument{
		ID:           req.ID,
		Filename:     req.Filename,
		DocumentType: req.DocumentType,
		ContentType:  req.ContentType,
		Path:         req.Path,
	}
	if err := h.service.AddDocument(c.Request.Context(), c.Param("ref"), doc); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    doc,
	})
}

func (h *Handlers) AddWorkItem(c *gin.Context) {
	var raw costs.RawWorkItem
	if !h.bind(c, &raw) {
		return
	}

	result, err := h.service.AddWorkItem(c.Request.Context(), c.Param("ref"), raw)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"data":    result,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) DeleteWorkItem(c *gin.Context) {
	if err := h.service.DeleteWorkItem(c.Request.Context(), c.Param("ref"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Work item deleted",
	})
}

func (h *Handlers) AddDisbursement(c *gin.Context) {
	var raw costs.RawDisbursement
	if !h.bind(c, &raw) {
		return
	}

	result, err := h.service.AddDisbursement(c.Request.Context(), c.Param("ref"), raw)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}

func (h *Handlers) DisputeWorkItem(c *gin.Context) {
	h.setDispute(c, costs.KindWorkItem)
}

func (h *Handlers) DisputeDisbursement(c *gin.Context) {
	h.setDispute(c, costs.KindDisbursement)
}

func (h *Handlers) setDispute(c *gin.Context, kind costs.RecordKind) {
	var req struct {
		Disputed      *bool            `json:"disputed"`
		Reason        string           `json:"reason"`
		OfferedAmount *decimal.Decimal `json:"offered_amount"`
	}
	if !h.bind(c, &req) {
		return
	}
	disputed := req.Disputed == nil || *req.Disputed
	if disputed && strings.TrimSpace(req.Reason) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "A reason is required to dispute an item",
		})
		return
	}

	err := h.service.SetDispute(c.Request.Context(), c.Param("ref"), kind, c.Param("id"), disputed, req.Reason, req.OfferedAmount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"disputed": disputed,
	})
}

func (h *Handlers) ReplyWorkItem(c *gin.Context) {
	h.setReply(c, costs.KindWorkItem)
}

func (h *Handlers) ReplyDisbursement(c *gin.Context) {
	h.setReply(c, costs.KindDisbursement)
}

// setReply records the receiving party's answer to a point of dispute
func (h *Handlers) setReply(c *gin.Context, kind costs.RecordKind) {
	var req struct {
		Reply string `json:"reply" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}

	err := h.service.SetReply(c.Request.Context(), c.Param("ref"), kind, c.Param("id"), req.Reply)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reply":   strings.TrimSpace(req.Reply),
	})
}

type rateRequest struct {
	ID            string          `json:"id"`
	CaseRef       string          `json:"case_ref"`
	Grade         string          `json:"grade" binding:"required"`
	FeeEarnerID   string          `json:"fee_earner_id"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	EffectiveFrom string          `json:"effective_from" binding:"required"`
	EffectiveTo   string          `json:"effective_to"`
}

func (r rateRequest) entry() (costs.RateEntry, error) {
	grade, err := costs.ParseGrade(r.Grade)
	if err != nil {
		return costs.RateEntry{}, err
	}
	from, err := costs.ParseDate(r.EffectiveFrom)
	if err != nil {
		return costs.RateEntry{}, fmt.Errorf("%w: effective_from: %v", costs.ErrInvalidRateEntry, err)
	}
	e := costs.RateEntry{
		ID:            r.ID,
		CaseID:        strings.TrimSpace(r.CaseRef),
		Grade:         grade,
		FeeEarnerID:   strings.TrimSpace(r.FeeEarnerID),
		HourlyRate:    r.HourlyRate,
		EffectiveFrom: from,
	}
	if r.EffectiveTo != "" {
		to, err := costs.ParseDate(r.EffectiveTo)
		if err != nil {
			return costs.RateEntry{}, fmt.Errorf("%w: effective_to: %v", costs.ErrInvalidRateEntry, err)
		}
		e.EffectiveTo = &to
	}
	return e, nil
}

// AddRates adds schedule entries; an entry without case_ref is a firm default
func (h *Handlers) AddRates(c *gin.Context) {
	var req struct {
		Rates []rateRequest `json:"rates" binding:"required,min=1,dive"`
	}
	if !h.bind(c, &req) {
		return
	}

	entries := make([]costs.RateEntry, 0, len(req.Rates))
	for _, r := range req.Rates {
		e, err := r.entry()
		if err != nil {
			h.respondError(c, err)
			return
		}
		entries = append(entries, e)
	}

	added, skipped, err := h.service.AddRates(c.Request.Context(), entries)
	if err != nil {
		h.respondError(c, err)
		return
	}

	isSkipped := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		isSkipped[id] = true
	}
	stored := make([]costs.RateEntry, 0, len(entries))
	for _, e := range entries {
		if !isSkipped[e.ID] {
			stored = append(stored, e)
		}
	}
	if skipped == nil {
		skipped = []string{}
	}

	status := http.StatusCreated
	if added == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success": true,
		"added":   added,
		"skipped": skipped,
		"data":    stored,
	})
}

// GetBill returns the bill aggregate as JSON
func (h *Handlers) GetBill(c *gin.Context) {
	bill, _, err := h.service.Bill(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bill,
	})
}

func (h *Handlers) RenderBill(c *gin.Context) {
	req, ok := h.documentRequest(c)
	if !ok {
		return
	}

	out, err := h.service.Render(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	contentType := "text/html; charset=utf-8"
	if req.Format == render.FormatText {
		contentType = "text/plain; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, out)
}

func (h *Handlers) BillPDF(c *gin.Context) {
	req, ok := h.documentRequest(c)
	if !ok {
		return
	}

	out, err := h.service.PDF(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s.pdf", req.Document, c.Param("ref"))))
	c.Data(http.StatusOK, "application/pdf", out)
}

// SaveBill writes the rendered document to the output directory
func (h *Handlers) SaveBill(c *gin.Context) {
	req, ok := h.documentRequest(c)
	if !ok {
		return
	}

	path, err := h.service.Save(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"path":    path,
	})
}

func (h *Handlers) documentRequest(c *gin.Context) (billing.Request, bool) {
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		h.respondError(c, err)
		return billing.Request{}, false
	}
	doc, err := render.ParseDocument(c.Query("doc"))
	if err != nil {
		h.respondError(c, err)
		return billing.Request{}, false
	}
	return billing.Request{Format: format, Document: doc, ClientIP: c.ClientIP()}, true
}

func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return false
	}
	return true
}

// respondError maps domain errors to status codes. Anything unrecognised is
// logged and reported as an internal error.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var incomplete *costs.IncompleteBillError
	if errors.As(err, &incomplete) {
		items := make([]gin.H, 0, len(incomplete.Problems))
		for _, p := range incomplete.Problems {
			item := gin.H{
				"record_id": p.RecordID,
				"kind":      p.Kind,
				"reason":    p.Reason(),
			}
			if p.Grade != "" {
				item["grade"] = p.Grade
			}
			if !p.Date.IsZero() {
				item["date"] = p.Date.Format(costs.DateLayout)
			}
			items = append(items, item)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   err.Error(),
			"items":   items,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrCaseNotFound),
		errors.Is(err, database.ErrRecordNotFound),
		errors.Is(err, database.ErrFeeEarnerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, costs.ErrDataInconsistency),
		errors.Is(err, costs.ErrInvalidRecord),
		errors.Is(err, costs.ErrUnknownGrade),
		errors.Is(err, costs.ErrUnknownDisbursementType),
		errors.Is(err, costs.ErrInvalidRateEntry):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrInvalidCase),
		errors.Is(err, render.ErrUnknownFormat),
		errors.Is(err, render.ErrUnknownDocument):
		status = http.StatusBadRequest
	case errors.Is(err, gorm.ErrDuplicatedKey):
		status = http.StatusConflict
	case errors.Is(err, billing.ErrPDFDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}
