package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	webhookdomain "github.com/frappe/press-billing/internal/domain/webhook"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type WebhookEndpointServiceSuite struct {
	testutil.BaseServiceTestSuite
	service WebhookEndpointService
}

func TestWebhookEndpointService(t *testing.T) {
	suite.Run(t, new(WebhookEndpointServiceSuite))
}

func (s *WebhookEndpointServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewWebhookEndpointService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *WebhookEndpointServiceSuite) create(events ...string) *dto.WebhookResponse {
	resp, err := s.service.CreateWebhook(s.GetContext(), &dto.CreateWebhookRequest{
		URL:    "https://hooks.example.com/billing",
		Secret: "whsec_test",
		Events: events,
	})
	s.NoError(err)
	return resp
}

func (s *WebhookEndpointServiceSuite) TestCreateWebhookEnabledByDefault() {
	resp := s.create(types.WebhookEventInvoicePaid)
	s.True(resp.Enabled)
	s.Equal([]string{types.WebhookEventInvoicePaid}, []string(resp.Events))
}

func (s *WebhookEndpointServiceSuite) TestCreateWebhookRejectsRelativeURL() {
	_, err := s.service.CreateWebhook(s.GetContext(), &dto.CreateWebhookRequest{
		URL:    "/not-absolute",
		Secret: "whsec_test",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *WebhookEndpointServiceSuite) TestUpdateWebhookPartialFields() {
	created := s.create(types.WebhookEventInvoicePaid)

	resp, err := s.service.UpdateWebhook(s.GetContext(), created.ID, &dto.UpdateWebhookRequest{
		Enabled: lo.ToPtr(false),
		Events:  lo.ToPtr([]string{}),
	})
	s.NoError(err)
	s.False(resp.Enabled)
	s.Empty(resp.Events)
	s.Equal("https://hooks.example.com/billing", resp.URL)
}

func (s *WebhookEndpointServiceSuite) TestDeletedWebhookStopsReceiving() {
	created := s.create()
	s.NoError(s.service.DeleteWebhook(s.GetContext(), created.ID))

	_, err := s.service.GetWebhook(s.GetContext(), created.ID)
	s.True(ierr.IsNotFound(err))

	endpoints, err := s.GetStores().WebhookEndpointRepo.ListEnabledForEvent(
		s.GetContext(), types.WebhookEventInvoicePaid)
	s.NoError(err)
	s.Empty(endpoints)
}

func (s *WebhookEndpointServiceSuite) seedLog(status types.WebhookLogStatus, retries int) *webhookdomain.Log {
	l := &webhookdomain.Log{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG),
		EventName: types.WebhookEventInvoicePaid,
		Payload:   json.RawMessage(`{}`),
		LogStatus: status,
		Retries:   retries,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().WebhookLogRepo.Create(s.GetContext(), l))
	return l
}

func (s *WebhookEndpointServiceSuite) TestRequeueAbandonedLog() {
	log := s.seedLog(types.WebhookLogStatusFailed, types.WebhookRetryCap+1)

	s.NoError(s.service.RequeueLog(s.GetContext(), log.ID))

	stored, err := s.GetStores().WebhookLogRepo.Get(s.GetContext(), log.ID)
	s.NoError(err)
	s.Equal(types.WebhookLogStatusPending, stored.LogStatus)
	s.Zero(stored.Retries)
	s.Nil(stored.NextRetryAt)
	s.True(stored.Deliverable(time.Now().UTC()))
}

func (s *WebhookEndpointServiceSuite) TestRequeueDeliveredLogRejected() {
	log := s.seedLog(types.WebhookLogStatusSent, 0)

	err := s.service.RequeueLog(s.GetContext(), log.ID)
	s.Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *WebhookEndpointServiceSuite) TestGetLogIncludesAttempts() {
	log := s.seedLog(types.WebhookLogStatusSent, 0)
	s.NoError(s.GetStores().WebhookLogRepo.CreateAttempt(s.GetContext(), &webhookdomain.Attempt{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_ATTEMPT),
		LogID:         log.ID,
		EndpointID:    "wh_ep",
		AttemptStatus: types.WebhookAttemptStatusSent,
		ResponseCode:  200,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}))

	resp, err := s.service.GetLog(s.GetContext(), log.ID)
	s.NoError(err)
	s.Len(resp.Attempts, 1)
	s.Equal(types.WebhookAttemptStatusSent, resp.Attempts[0].AttemptStatus)
}
