package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"prorab/internal/core/apperror"
	"prorab/internal/domain/issues"
	"prorab/internal/infrastructure/http/v1/dto"
)

// IssueReports is the report service consumed by the handlers.
type IssueReports interface {
	Options(ctx context.Context, from, to time.Time) (*issues.ReportOptions, error)
	Summary(ctx context.Context, p issues.Params) (*issues.Summary, error)
	Discipline(ctx context.Context, p issues.Params) (*issues.DisciplineReport, error)
}

// ReportsHandler handles HTTP requests for issuance reports.
type ReportsHandler struct {
	*BaseHandler
	service IssueReports
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service IssueReports) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetOptions handles GET /reports/issues/options
func (h *ReportsHandler) GetOptions(c *gin.Context) {
	req, p, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	opts, err := h.service.Options(c.Request.Context(), p.From, p.To)
	if err != nil {
		h.Error(c, reportError("options", req, err))
		return
	}
	h.OK(c, dto.FromReportOptions(req.From, req.To, opts))
}

// GetSummary handles GET /reports/issues/summary
func (h *ReportsHandler) GetSummary(c *gin.Context) {
	req, p, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), p)
	if err != nil {
		h.Error(c, reportError("summary", req, err))
		return
	}
	h.OK(c, summary)
}

// GetDiscipline handles GET /reports/issues/discipline
func (h *ReportsHandler) GetDiscipline(c *gin.Context) {
	req, p, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	report, err := h.service.Discipline(c.Request.Context(), p)
	if err != nil {
		h.Error(c, reportError("discipline", req, err))
		return
	}
	h.OK(c, report)
}

func (h *ReportsHandler) bindPeriod(c *gin.Context) (dto.PeriodRequest, issues.Params, bool) {
	var req dto.PeriodRequest
	if !h.BindQuery(c, &req) {
		return req, issues.Params{}, false
	}

	from, to, err := req.Dates()
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return req, issues.Params{}, false
	}
	if from.After(to) {
		h.Error(c, apperror.NewInvalidRange(req.From, req.To))
		return req, issues.Params{}, false
	}
	return req, issues.Params{From: from, To: to, ObjectName: req.Object}, true
}

func reportError(report string, req dto.PeriodRequest, err error) error {
	switch {
	case errors.Is(err, issues.ErrInvalidRange):
		return apperror.NewInvalidRange(req.From, req.To)
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.NewTimeout(err)
	default:
		return apperror.NewReportUnavailable(report, err)
	}
}
