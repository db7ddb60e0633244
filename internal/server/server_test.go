package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/saasfoundry/tenantops/internal/config"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"go.uber.org/zap"
)

type fakeSessionService struct {
	createCalls int
	lastCreate  sessiondomain.CreateSessionRequest
	createErr   error

	checkResult sessiondomain.CheckResult
	checkErr    error

	endCalls  int
	endResult bool
	endErr    error

	listResult []sessiondomain.Session
}

func (f *fakeSessionService) Create(ctx context.Context, req sessiondomain.CreateSessionRequest) (sessiondomain.Session, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return sessiondomain.Session{}, f.createErr
	}
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	return sessiondomain.Session{
		ID:         snowflake.ID(100),
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		UserLogin:  req.UserLogin,
		MasterUID:  req.MasterUID,
		StartTime:  now,
		ExpiryTime: now.Add(sessiondomain.SessionDuration),
		State:      sessiondomain.SessionStateActive,
	}, nil
}

func (f *fakeSessionService) CheckValid(ctx context.Context, sessionID string) (sessiondomain.CheckResult, error) {
	_ = sessionID
	return f.checkResult, f.checkErr
}

func (f *fakeSessionService) End(ctx context.Context, sessionID string, reason sessiondomain.SessionState) (bool, error) {
	f.endCalls++
	_ = sessionID
	_ = reason
	return f.endResult, f.endErr
}

func (f *fakeSessionService) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeSessionService) List(ctx context.Context, req sessiondomain.ListSessionsRequest) ([]sessiondomain.Session, error) {
	_ = req
	return f.listResult, nil
}

type fakeRecurringService struct {
	createErr  error
	getResult  *recurringdomain.Schedule
	getErr     error
	pauseErr   error
	resumeErr  error
	cancelErr  error
	payAttempt *recurringdomain.Attempt
	payErr     error
}

func (f *fakeRecurringService) Create(ctx context.Context, req recurringdomain.CreateScheduleRequest) (recurringdomain.Schedule, error) {
	if f.createErr != nil {
		return recurringdomain.Schedule{}, f.createErr
	}
	return recurringdomain.Schedule{
		ID:        snowflake.ID(200),
		Reference: "REC-200",
		TokenID:   req.TokenID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Frequency: req.Frequency,
		State:     recurringdomain.ScheduleStateActive,
	}, nil
}

func (f *fakeRecurringService) Get(ctx context.Context, reference string) (*recurringdomain.Schedule, error) {
	_ = reference
	return f.getResult, f.getErr
}

func (f *fakeRecurringService) List(ctx context.Context, req recurringdomain.ListSchedulesRequest) ([]recurringdomain.Schedule, error) {
	_ = req
	return nil, nil
}

func (f *fakeRecurringService) ListTransactions(ctx context.Context, reference string) ([]recurringdomain.Transaction, error) {
	_ = reference
	return nil, nil
}

func (f *fakeRecurringService) ProcessDue(ctx context.Context) ([]recurringdomain.Attempt, error) {
	return nil, nil
}

func (f *fakeRecurringService) PayNow(ctx context.Context, reference string) (*recurringdomain.Attempt, error) {
	_ = reference
	return f.payAttempt, f.payErr
}

func (f *fakeRecurringService) Pause(ctx context.Context, reference string) error {
	_ = reference
	return f.pauseErr
}

func (f *fakeRecurringService) Resume(ctx context.Context, reference string) error {
	_ = reference
	return f.resumeErr
}

func (f *fakeRecurringService) Cancel(ctx context.Context, reference string) error {
	_ = reference
	return f.cancelErr
}

func (f *fakeRecurringService) ApplyGatewayEvent(ctx context.Context, event *paymentdomain.WebhookEvent) error {
	_ = event
	return nil
}

type fakePaymentService struct {
	ingestCalls  int
	lastProvider string
	lastPayload  []byte
	lastHeaders  http.Header
	ingestErr    error
}

func (f *fakePaymentService) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.ingestCalls++
	f.lastProvider = provider
	f.lastPayload = payload
	f.lastHeaders = headers
	return f.ingestErr
}

type testServer struct {
	server     *Server
	sessions   *fakeSessionService
	recurrings *fakeRecurringService
	payments   *fakePaymentService
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(9)
	if err != nil {
		panic(err)
	}

	sessions := &fakeSessionService{}
	recurrings := &fakeRecurringService{}
	payments := &fakePaymentService{}

	srv := NewServer(ServerParams{
		Gin:          NewEngine(zap.NewNop()),
		Cfg:          config.Config{Environment: "test"},
		Log:          zap.NewNop(),
		GenID:        node,
		SessionSvc:   sessions,
		RecurringSvc: recurrings,
		PaymentSvc:   payments,
	})

	return &testServer{
		server:     srv,
		sessions:   sessions,
		recurrings: recurrings,
		payments:   payments,
	}
}
