package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/config"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type DispatcherSuite struct {
	suite.Suite
	ctx          context.Context
	config       *config.Configuration
	logRepo      *testutil.InMemoryWebhookLogStore
	endpointRepo *testutil.InMemoryWebhookEndpointStore
	client       *testutil.MockHTTPClient
	dispatcher   *Dispatcher
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	ctx := context.Background()
	ctx = types.SetTenantID(ctx, types.DefaultTenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	s.ctx = ctx

	s.config = config.GetDefaultConfig()
	log, err := logger.NewLogger(s.config)
	s.Require().NoError(err)

	s.logRepo = testutil.NewInMemoryWebhookLogStore()
	s.endpointRepo = testutil.NewInMemoryWebhookEndpointStore()
	s.client = testutil.NewMockHTTPClient()
	s.dispatcher = NewDispatcher(s.logRepo, s.endpointRepo, s.client, s.config, log)
}

func (s *DispatcherSuite) endpoint(url string, events ...string) *webhookdomain.Endpoint {
	e := &webhookdomain.Endpoint{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK),
		URL:       url,
		Secret:    "whsec_test",
		Enabled:   true,
		Events:    types.StringSlice(events),
		BaseModel: types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.endpointRepo.Create(s.ctx, e))
	return e
}

func (s *DispatcherSuite) pendingLog(eventName string) *webhookdomain.Log {
	l := &webhookdomain.Log{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG),
		EventName: eventName,
		Payload:   json.RawMessage(`{"invoice_id":"inv_123"}`),
		LogStatus: types.WebhookLogStatusPending,
		BaseModel: types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.logRepo.Create(s.ctx, l))
	return l
}

func (s *DispatcherSuite) TestDeliverFansOutToSubscribedEndpoints() {
	s.endpoint("https://one.example.com/hooks", types.WebhookEventInvoicePaid)
	s.endpoint("https://two.example.com/hooks", types.WebhookEventCreditsAdded)
	s.client.RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusOK})

	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Deliver(s.ctx, log))

	// Only the subscribed endpoint was posted to.
	requests := s.client.Requests()
	s.Require().Len(requests, 1)
	s.Equal("https://one.example.com/hooks", requests[0].URL)
	s.Equal("whsec_test", requests[0].Headers["X-Webhook-Secret"])

	var env struct {
		ID    string          `json:"id"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	s.NoError(json.Unmarshal(requests[0].Body, &env))
	s.Equal(log.ID, env.ID)
	s.Equal(types.WebhookEventInvoicePaid, env.Event)
	s.JSONEq(`{"invoice_id":"inv_123"}`, string(env.Data))

	stored, err := s.logRepo.Get(s.ctx, log.ID)
	s.NoError(err)
	s.Equal(types.WebhookLogStatusSent, stored.LogStatus)
	s.Zero(stored.Retries)
}

func (s *DispatcherSuite) TestEmptyEventListReceivesEverything() {
	s.endpoint("https://all.example.com/hooks")
	s.client.RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusOK})

	s.NoError(s.dispatcher.Deliver(s.ctx, s.pendingLog(types.WebhookEventBalanceUpdated)))
	s.Len(s.client.Requests(), 1)
}

func (s *DispatcherSuite) TestNoMatchingEndpointsMarksSent() {
	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Deliver(s.ctx, log))

	stored, err := s.logRepo.Get(s.ctx, log.ID)
	s.NoError(err)
	s.Equal(types.WebhookLogStatusSent, stored.LogStatus)
	s.Empty(s.client.Requests())
}

func (s *DispatcherSuite) TestPartialFailureRetriesOnlyFailedEndpoint() {
	good := s.endpoint("https://good.example.com/ok", types.WebhookEventInvoicePaid)
	bad := s.endpoint("https://bad.example.com/err", types.WebhookEventInvoicePaid)
	s.client.RegisterResponse("/ok", testutil.MockResponse{StatusCode: http.StatusOK})
	s.client.RegisterResponse("/err", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Deliver(s.ctx, log))

	s.Equal(types.WebhookLogStatusPartiallySent, log.LogStatus)
	s.Equal(1, log.Retries)
	s.Require().NotNil(log.NextRetryAt)
	s.True(log.NextRetryAt.After(time.Now().UTC()))
	s.NotEmpty(log.LastError)

	attempts, err := s.logRepo.ListAttempts(s.ctx, log.ID)
	s.NoError(err)
	s.Len(attempts, 2)

	// The retry round reaches only the endpoint that failed.
	s.client.Clear()
	s.client.RegisterResponse("/err", testutil.MockResponse{StatusCode: http.StatusOK})
	s.client.RegisterResponse("/ok", testutil.MockResponse{StatusCode: http.StatusOK})
	s.NoError(s.dispatcher.Deliver(s.ctx, log))

	requests := s.client.Requests()
	s.Require().Len(requests, 1)
	s.Equal(bad.URL, requests[0].URL)
	s.Equal(types.WebhookLogStatusSent, log.LogStatus)
	s.Nil(log.NextRetryAt)
	s.Empty(log.LastError)

	served, err := s.logRepo.ListAttemptedEndpoints(s.ctx, log.ID, types.WebhookAttemptStatusSent)
	s.NoError(err)
	s.ElementsMatch([]string{good.ID, bad.ID}, served)
}

func (s *DispatcherSuite) TestFailedAttemptRecordsResponseCode() {
	s.endpoint("https://bad.example.com/err", types.WebhookEventInvoicePaid)
	s.client.RegisterResponse("/err", testutil.MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       []byte("upstream down"),
	})

	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Deliver(s.ctx, log))

	attempts, err := s.logRepo.ListAttempts(s.ctx, log.ID)
	s.NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(types.WebhookAttemptStatusFailed, attempts[0].AttemptStatus)
	s.Equal(http.StatusBadGateway, attempts[0].ResponseCode)
	s.NotEmpty(attempts[0].Error)
}

func (s *DispatcherSuite) TestRetryCapAbandonsLog() {
	s.endpoint("https://bad.example.com/err", types.WebhookEventInvoicePaid)
	s.client.RegisterResponse("/err", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	// The initial round plus one retry round per allowed retry.
	log := s.pendingLog(types.WebhookEventInvoicePaid)
	for i := 0; i <= types.WebhookRetryCap; i++ {
		s.NoError(s.dispatcher.Deliver(s.ctx, log))
	}

	s.Equal(types.WebhookLogStatusFailed, log.LogStatus)
	s.Equal(types.WebhookRetryCap+1, log.Retries)
	s.Nil(log.NextRetryAt)

	// A log that exhausted its retries is never claimed again.
	claimed, err := s.logRepo.ClaimDeliverable(s.ctx, time.Now().UTC().Add(24*time.Hour), 10)
	s.NoError(err)
	s.Empty(claimed)
}

func (s *DispatcherSuite) TestLogAtRetryCapStillClaimable() {
	log := s.pendingLog(types.WebhookEventInvoicePaid)
	log.LogStatus = types.WebhookLogStatusFailed
	log.Retries = types.WebhookRetryCap
	next := time.Now().UTC().Add(-time.Minute)
	log.NextRetryAt = &next
	s.NoError(s.logRepo.Update(s.ctx, log))

	claimed, err := s.logRepo.ClaimDeliverable(s.ctx, time.Now().UTC(), 10)
	s.NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(log.ID, claimed[0].ID)
}

func (s *DispatcherSuite) TestAbandonedPartialDeliveryEndsFailed() {
	s.endpoint("https://good.example.com/ok", types.WebhookEventInvoicePaid)
	s.endpoint("https://bad.example.com/err", types.WebhookEventInvoicePaid)
	s.client.RegisterResponse("/ok", testutil.MockResponse{StatusCode: http.StatusOK})
	s.client.RegisterResponse("/err", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Deliver(s.ctx, log))
	s.Equal(types.WebhookLogStatusPartiallySent, log.LogStatus)

	for i := 0; i < types.WebhookRetryCap; i++ {
		s.NoError(s.dispatcher.Deliver(s.ctx, log))
	}

	// Abandonment overrides the partial success marker.
	s.Equal(types.WebhookLogStatusFailed, log.LogStatus)
	s.Equal(types.WebhookRetryCap+1, log.Retries)
	s.Nil(log.NextRetryAt)
}

func (s *DispatcherSuite) TestTickClaimsAndDelivers() {
	s.endpoint("https://one.example.com/hooks", types.WebhookEventInvoicePaid)
	s.client.RegisterResponse("/hooks", testutil.MockResponse{StatusCode: http.StatusOK})

	log := s.pendingLog(types.WebhookEventInvoicePaid)
	s.NoError(s.dispatcher.Tick(s.ctx))

	stored, err := s.logRepo.Get(s.ctx, log.ID)
	s.NoError(err)
	s.Equal(types.WebhookLogStatusSent, stored.LogStatus)

	// A second tick finds nothing to deliver.
	s.NoError(s.dispatcher.Tick(s.ctx))
	s.Len(s.client.Requests(), 1)
}

func (s *DispatcherSuite) TestPruneKeepsRetryableLogs() {
	old := time.Now().UTC().Add(-48 * time.Hour)

	sent := s.pendingLog(types.WebhookEventInvoicePaid)
	sent.LogStatus = types.WebhookLogStatusSent
	sent.CreatedAt = old
	s.NoError(s.logRepo.Update(s.ctx, sent))

	abandoned := s.pendingLog(types.WebhookEventInvoicePaid)
	abandoned.LogStatus = types.WebhookLogStatusFailed
	abandoned.Retries = types.WebhookRetryCap + 1
	abandoned.CreatedAt = old
	s.NoError(s.logRepo.Update(s.ctx, abandoned))

	retrying := s.pendingLog(types.WebhookEventInvoicePaid)
	retrying.LogStatus = types.WebhookLogStatusFailed
	retrying.Retries = 1
	retrying.CreatedAt = old
	s.NoError(s.logRepo.Update(s.ctx, retrying))

	fresh := s.pendingLog(types.WebhookEventInvoicePaid)
	fresh.LogStatus = types.WebhookLogStatusSent
	s.NoError(s.logRepo.Update(s.ctx, fresh))

	removed, err := s.dispatcher.Prune(s.ctx)
	s.NoError(err)
	s.Equal(2, removed)

	_, err = s.logRepo.Get(s.ctx, retrying.ID)
	s.NoError(err)
	_, err = s.logRepo.Get(s.ctx, fresh.ID)
	s.NoError(err)
}
