package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/saasfoundry/tenantops/internal/audit/domain"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
)

type createSupportSessionRequest struct {
	UserID      int64   `json:"user_id"`
	UserLogin   string  `json:"user_login"`
	MasterUID   int64   `json:"master_uid"`
	SessionID   string  `json:"session_id"`
	CallbackURL *string `json:"callback_url"`
}

type supportSessionResponse struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"session_id"`
	UserID       int64   `json:"user_id"`
	UserLogin    string  `json:"user_login"`
	MasterUID    int64   `json:"master_uid"`
	StartTime    string  `json:"start_time"`
	ExpiryTime   string  `json:"expiry_time"`
	EndTime      *string `json:"end_time,omitempty"`
	State        string  `json:"state"`
	CallbackSent bool    `json:"callback_sent"`
}

func toSupportSessionResponse(session sessiondomain.Session) supportSessionResponse {
	var endTime *string
	if session.EndTime != nil {
		formatted := session.EndTime.UTC().Format(time.RFC3339)
		endTime = &formatted
	}
	return supportSessionResponse{
		ID:           session.ID.String(),
		SessionID:    session.SessionID,
		UserID:       session.UserID,
		UserLogin:    session.UserLogin,
		MasterUID:    session.MasterUID,
		StartTime:    session.StartTime.UTC().Format(time.RFC3339),
		ExpiryTime:   session.ExpiryTime.UTC().Format(time.RFC3339),
		EndTime:      endTime,
		State:        string(session.State),
		CallbackSent: session.CallbackSent,
	}
}

func (s *Server) CreateSupportSession(c *gin.Context) {
	var req createSupportSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.sessionSvc.Create(c.Request.Context(), sessiondomain.CreateSessionRequest{
		UserID:      req.UserID,
		UserLogin:   strings.TrimSpace(req.UserLogin),
		MasterUID:   req.MasterUID,
		SessionID:   strings.TrimSpace(req.SessionID),
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSupportSessionResponse(session)})
}

func (s *Server) ListSupportSessions(c *gin.Context) {
	var query struct {
		State  string `form:"state"`
		UserID int64  `form:"user_id"`
		Limit  int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sessions, err := s.sessionSvc.List(c.Request.Context(), sessiondomain.ListSessionsRequest{
		State:  strings.TrimSpace(query.State),
		UserID: query.UserID,
		Limit:  query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]supportSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, toSupportSessionResponse(session))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckSupportSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))

	result, err := s.sessionSvc.CheckValid(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{"valid": result.Valid}
	if result.Reason != "" {
		body["reason"] = result.Reason
	}
	if result.Session != nil {
		body["session"] = toSupportSessionResponse(*result.Session)
	}

	c.JSON(http.StatusOK, gin.H{"data": body})
}

type endSupportSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) EndSupportSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))

	var req endSupportSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	reason := sessiondomain.SessionStateEnded
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = sessiondomain.SessionState(trimmed)
	}

	ended, err := s.sessionSvc.End(c.Request.Context(), sessionID, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"ended": ended}})
}

// HandleSupportSessionCallback ingests the end-of-session notification a
// tenant instance posts back when this node acts as the master. The record
// lands in the audit log.
func (s *Server) HandleSupportSessionCallback(c *gin.Context) {
	var req sessiondomain.EndCallback
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		AbortWithError(c, newValidationError("session_id", "invalid_session_id", "session_id is required"))
		return
	}

	if s.auditSvc != nil {
		actorID := strconv.FormatInt(req.UserID, 10)
		targetID := req.SessionID
		_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeMaster, &actorID,
			"support_session.callback_received", "support_session", &targetID, map[string]any{
				"master_uid":       req.MasterUID,
				"user_login":       req.UserLogin,
				"state":            req.State,
				"duration_minutes": req.DurationMinutes,
				"start_time":       req.StartTime,
				"end_time":         req.EndTime,
			})
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isSessionValidationError(err error) bool {
	switch err {
	case sessiondomain.ErrInvalidUser,
		sessiondomain.ErrInvalidReason:
		return true
	default:
		return false
	}
}
