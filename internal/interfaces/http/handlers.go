package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
)

// Accepted date layouts, tried in order. Layouts without an offset are read
// in the configured location.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

const monthLayout = "2006-01"

// Handlers contains all HTTP request handlers
type Handlers struct {
	settlementService service.SettlementService
	ledgerService     service.LedgerService
	reportService     service.ReportService
	masterDataService service.MasterDataService
	location          *time.Location
	health            HealthFunc
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	loc := services.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		settlementService: services.Settlement,
		ledgerService:     services.Ledger,
		reportService:     services.Report,
		masterDataService: services.MasterData,
		location:          loc,
		health:            services.Health,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// SettlementRequest is the wire form of a settlement request
type SettlementRequest struct {
	Date            string           `json:"date" binding:"required"`
	TeacherID       string           `json:"teacher_id"`
	ClientID        string           `json:"client_id"`
	DurationMinutes int              `json:"duration_minutes"`
	VoucherIDs      []string         `json:"voucher_ids"`
	ExpectedUsage   map[string]int64 `json:"expected_usage,omitempty"`
}

// ResetRequest carries the bulk reset confirmation phrase
type ResetRequest struct {
	Confirm string `json:"confirm"`
}

// ResetResponse reports how many sessions a reset removed
type ResetResponse struct {
	Deleted int64 `json:"deleted"`
}

// SessionsResponse is a window of session details
type SessionsResponse struct {
	Window   period.Window          `json:"window"`
	Sessions []entity.SessionDetail `json:"sessions"`
}

// AllotmentsResponse is the monthly allotment dashboard
type AllotmentsResponse struct {
	Month   string                    `json:"month"`
	Clients []service.ClientAllotment `json:"clients"`
}

// TeacherRequest is the wire form of a teacher record. Active defaults to true.
type TeacherRequest struct {
	ID             string  `json:"id"`
	Name           string  `json:"name" binding:"required"`
	CommissionRate float64 `json:"commission_rate"`
	Active         *bool   `json:"active,omitempty"`
}

// ClientRequest is the wire form of a client record
type ClientRequest struct {
	ID               string `json:"id" binding:"required"`
	Name             string `json:"name" binding:"required"`
	RegistrationDate string `json:"registration_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
}

// AssignTeacherRequest links a teacher to the client in the path
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}

// QuoteSettlement handles POST /api/settlements/quote
func (h *Handlers) QuoteSettlement(c *gin.Context) {
	var body SettlementRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	quote, err := h.settlementService.Quote(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// SubmitSession handles POST /api/sessions
func (h *Handlers) SubmitSession(c *gin.Context) {
	var body SettlementRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.settlementService.SubmitWithRetry(c.Request.Context(), service.SubmitRequest{
		Request:       req,
		ExpectedUsage: body.ExpectedUsage,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// ListSessions handles GET /api/sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	window, ok := h.windowFromQuery(c)
	if !ok {
		return
	}

	sessions, err := h.reportService.ListSessions(c.Request.Context(), window)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    SessionsResponse{Window: window, Sessions: sessions},
	})
}

// ResetSessions handles DELETE /api/sessions
func (h *Handlers) ResetSessions(c *gin.Context) {
	confirm := c.Query("confirm")
	if confirm == "" && c.Request.ContentLength != 0 {
		var body ResetRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, err.Error())
			return
		}
		confirm = body.Confirm
	}

	deleted, err := h.reportService.ResetSessions(c.Request.Context(), confirm)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Sessions reset via API", "deleted", deleted, "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, Response{Success: true, Data: ResetResponse{Deleted: deleted}})
}

// GetReport handles GET /api/reports
func (h *Handlers) GetReport(c *gin.Context) {
	kind, err := period.ParseKind(c.Query("period"))
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	anchor, err := h.anchorFromQuery(c)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	rep, err := h.reportService.Build(c.Request.Context(), service.ReportQuery{
		Period: kind,
		Anchor: anchor,
		Query:  c.Query("q"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rep})
}

// GetAllotments handles GET /api/allotments
func (h *Handlers) GetAllotments(c *gin.Context) {
	month := time.Now().In(h.location)
	if raw := c.Query("month"); raw != "" {
		parsed, err := time.ParseInLocation(monthLayout, raw, h.location)
		if err != nil {
			h.badRequest(c, "month must be formatted as YYYY-MM")
			return
		}
		month = parsed
	}

	filter := service.AllotmentFilter{
		Query:            c.Query("q"),
		TeacherID:        c.Query("teacher_id"),
		OnlyWithRollover: c.Query("rollover") == "true",
	}

	clients, err := h.ledgerService.MonthlyAllotments(c.Request.Context(), month, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    AllotmentsResponse{Month: month.Format(monthLayout), Clients: clients},
	})
}

// GetCenterSchedule handles GET /api/center-schedule
func (h *Handlers) GetCenterSchedule(c *gin.Context) {
	schedule, err := h.masterDataService.GetCenterSchedule(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: schedule})
}

// SaveCenterSchedule handles PUT /api/center-schedule
func (h *Handlers) SaveCenterSchedule(c *gin.Context) {
	var schedule entity.CenterFeeSchedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	if err := h.masterDataService.SaveCenterSchedule(c.Request.Context(), &schedule); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: schedule})
}

// SaveTeacher handles POST /api/teachers
func (h *Handlers) SaveTeacher(c *gin.Context) {
	var body TeacherRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	teacher := entity.Teacher{ID: body.ID, Name: body.Name, CommissionRate: body.CommissionRate, Active: true}
	if body.Active != nil {
		teacher.Active = *body.Active
	}
	if err := h.masterDataService.SaveTeacher(c.Request.Context(), &teacher); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: teacher})
}

// SaveClient handles POST /api/clients
func (h *Handlers) SaveClient(c *gin.Context) {
	var body ClientRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	client := &entity.Client{ID: body.ID, Name: body.Name}
	for _, field := range []struct {
		raw  string
		dest **time.Time
		name string
	}{
		{body.RegistrationDate, &client.RegistrationDate, "registration_date"},
		{body.EndDate, &client.EndDate, "end_date"},
	} {
		if field.raw == "" {
			continue
		}
		t, err := h.parseDate(field.raw)
		if err != nil {
			h.badRequest(c, field.name+": "+err.Error())
			return
		}
		*field.dest = &t
	}

	if err := h.masterDataService.SaveClient(c.Request.Context(), client); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: client})
}

// SaveVoucher handles POST /api/vouchers
func (h *Handlers) SaveVoucher(c *gin.Context) {
	var voucher entity.Voucher
	if err := c.ShouldBindJSON(&voucher); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	if err := h.masterDataService.SaveVoucher(c.Request.Context(), &voucher); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: voucher})
}

// ReplaceEnrollments handles PUT /api/clients/:id/enrollments
func (h *Handlers) ReplaceEnrollments(c *gin.Context) {
	clientID := c.Param("id")

	var enrollments []*entity.ClientVoucherEnrollment
	if err := c.ShouldBindJSON(&enrollments); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	for _, e := range enrollments {
		if e != nil {
			e.ClientID = clientID
		}
	}

	if err := h.masterDataService.ReplaceEnrollments(c.Request.Context(), clientID, enrollments); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: enrollments})
}

// AssignTeacher handles POST /api/clients/:id/teachers
func (h *Handlers) AssignTeacher(c *gin.Context) {
	var body AssignTeacherRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	assignment := entity.TeacherAssignment{TeacherID: body.TeacherID, ClientID: c.Param("id")}
	if err := h.masterDataService.AssignTeacher(c.Request.Context(), assignment.TeacherID, assignment.ClientID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: assignment})
}

func (h *Handlers) toRequest(body SettlementRequest) (settlement.Request, error) {
	date, err := h.parseDate(body.Date)
	if err != nil {
		return settlement.Request{}, settlement.NewValidationError("date", err.Error())
	}
	return settlement.Request{
		Date:            date,
		TeacherID:       body.TeacherID,
		ClientID:        body.ClientID,
		DurationMinutes: body.DurationMinutes,
		VoucherIDs:      body.VoucherIDs,
	}, nil
}

func (h *Handlers) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, h.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("expected RFC3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD")
}

// anchorFromQuery reads the date query parameter, defaulting to now
func (h *Handlers) anchorFromQuery(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now().In(h.location), nil
	}
	t, err := h.parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(h.location), nil
}

func (h *Handlers) windowFromQuery(c *gin.Context) (period.Window, bool) {
	kind, err := period.ParseKind(c.Query("period"))
	if err != nil {
		h.badRequest(c, err.Error())
		return period.Window{}, false
	}
	anchor, err := h.anchorFromQuery(c)
	if err != nil {
		h.badRequest(c, err.Error())
		return period.Window{}, false
	}
	window, err := period.Of(kind, anchor)
	if err != nil {
		h.badRequest(c, err.Error())
		return period.Window{}, false
	}
	return window, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    "bad_request",
	})
}

// writeError maps the settlement error taxonomy onto HTTP statuses
func (h *Handlers) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, settlement.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, settlement.ErrQuotaRace):
		status, code = http.StatusConflict, "quota_race"
	case errors.Is(err, settlement.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, settlement.ErrResetNotConfirmed):
		status, code = http.StatusPreconditionFailed, "reset_not_confirmed"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}

	c.JSON(status, Response{Success: false, Error: msg, Code: code})
}
