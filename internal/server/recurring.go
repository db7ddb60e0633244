package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
)

type createRecurringScheduleRequest struct {
	CustomerID     string         `json:"customer_id"`
	TokenID        string         `json:"token_id"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Frequency      string         `json:"frequency"`
	ManagementType string         `json:"management_type"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) CreateRecurringSchedule(c *gin.Context) {
	var req createRecurringScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseOptionalSnowflakeID(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	startDate, err := parseOptionalTime(req.StartDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	endDate, err := parseOptionalTime(req.EndDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	domainReq := recurringdomain.CreateScheduleRequest{
		TokenID:        strings.TrimSpace(req.TokenID),
		Amount:         req.Amount,
		Currency:       strings.TrimSpace(req.Currency),
		Frequency:      recurringdomain.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		ManagementType: recurringdomain.ManagementType(strings.ToLower(strings.TrimSpace(req.ManagementType))),
		EndDate:        endDate,
		Metadata:       req.Metadata,
	}
	if customerID != nil {
		domainReq.CustomerID = *customerID
	}
	if startDate != nil {
		domainReq.StartDate = *startDate
	}

	schedule, err := s.recurringSvc.Create(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

func (s *Server) ListRecurringSchedules(c *gin.Context) {
	var query struct {
		CustomerID string `form:"customer_id"`
		State      string `form:"state"`
		Limit      int    `form:"limit"`
		Offset     int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseOptionalSnowflakeID(query.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	req := recurringdomain.ListSchedulesRequest{
		State:  recurringdomain.ScheduleState(strings.TrimSpace(query.State)),
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if customerID != nil {
		req.CustomerID = *customerID
	}

	schedules, err := s.recurringSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

func (s *Server) GetRecurringSchedule(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("id"))

	schedule, err := s.recurringSvc.Get(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

func (s *Server) ListRecurringTransactions(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("id"))

	transactions, err := s.recurringSvc.ListTransactions(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transactions})
}

func (s *Server) PauseRecurringSchedule(c *gin.Context) {
	s.transitionRecurringSchedule(c, s.recurringSvc.Pause)
}

func (s *Server) ResumeRecurringSchedule(c *gin.Context) {
	s.transitionRecurringSchedule(c, s.recurringSvc.Resume)
}

func (s *Server) CancelRecurringSchedule(c *gin.Context) {
	s.transitionRecurringSchedule(c, s.recurringSvc.Cancel)
}

func (s *Server) transitionRecurringSchedule(c *gin.Context, transition func(ctx context.Context, reference string) error) {
	reference := strings.TrimSpace(c.Param("id"))

	if err := transition(c.Request.Context(), reference); err != nil {
		AbortWithError(c, err)
		return
	}

	schedule, err := s.recurringSvc.Get(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

func (s *Server) PayRecurringScheduleNow(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("id"))

	attempt, err := s.recurringSvc.PayNow(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}

func isRecurringValidationError(err error) bool {
	switch err {
	case recurringdomain.ErrInvalidAmount,
		recurringdomain.ErrInvalidCurrency,
		recurringdomain.ErrInvalidFrequency,
		recurringdomain.ErrInvalidToken,
		recurringdomain.ErrScheduleNotDue:
		return true
	default:
		return false
	}
}
