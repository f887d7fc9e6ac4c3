package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/frappe/press-billing/internal/types"
)

func TestLogDeliverable(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		log  Log
		want bool
	}{
		{
			name: "pending is always deliverable",
			log:  Log{LogStatus: types.WebhookLogStatusPending},
			want: true,
		},
		{
			name: "queued is claimed by another worker",
			log:  Log{LogStatus: types.WebhookLogStatusQueued},
			want: false,
		},
		{
			name: "sent is done",
			log:  Log{LogStatus: types.WebhookLogStatusSent},
			want: false,
		},
		{
			name: "failed with retry due",
			log:  Log{LogStatus: types.WebhookLogStatusFailed, Retries: 1, NextRetryAt: &past},
			want: true,
		},
		{
			name: "failed with retry not yet due",
			log:  Log{LogStatus: types.WebhookLogStatusFailed, Retries: 1, NextRetryAt: &future},
			want: false,
		},
		{
			name: "partially sent without a schedule",
			log:  Log{LogStatus: types.WebhookLogStatusPartiallySent, Retries: 2},
			want: true,
		},
		{
			name: "last retry still due at the cap",
			log:  Log{LogStatus: types.WebhookLogStatusFailed, Retries: types.WebhookRetryCap, NextRetryAt: &past},
			want: true,
		},
		{
			name: "retries exhausted",
			log:  Log{LogStatus: types.WebhookLogStatusFailed, Retries: types.WebhookRetryCap + 1, NextRetryAt: &past},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.log.Deliverable(now))
		})
	}
}

func TestEndpointSubscribed(t *testing.T) {
	all := Endpoint{}
	assert.True(t, all.Subscribed(types.WebhookEventInvoicePaid))
	assert.True(t, all.Subscribed(types.WebhookEventCreditsAdded))

	scoped := Endpoint{Events: types.StringSlice{types.WebhookEventInvoicePaid}}
	assert.True(t, scoped.Subscribed(types.WebhookEventInvoicePaid))
	assert.False(t, scoped.Subscribed(types.WebhookEventCreditsAdded))
}
