package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsOrderInsensitive(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeUsageRecord, map[string]interface{}{
		"tenant_id": "tn_1",
		"site_id":   "site-alpha",
		"date":      "2026-03-10",
	})
	b := g.GenerateKey(ScopeUsageRecord, map[string]interface{}{
		"date":      "2026-03-10",
		"site_id":   "site-alpha",
		"tenant_id": "tn_1",
	})
	assert.Equal(t, a, b)
}

func TestGenerateKeyDistinguishesParams(t *testing.T) {
	g := NewGenerator()

	base := map[string]interface{}{"tenant_id": "tn_1", "date": "2026-03-10"}
	other := map[string]interface{}{"tenant_id": "tn_1", "date": "2026-03-11"}

	assert.NotEqual(t,
		g.GenerateKey(ScopeUsageRecord, base),
		g.GenerateKey(ScopeUsageRecord, other),
	)
	// Same params under a different scope never collide.
	assert.NotEqual(t,
		g.GenerateKey(ScopeUsageRecord, base),
		g.GenerateKey(ScopeSubscriptionInvoice, base),
	)
}

func TestValidateKey(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{"tenant_id": "tn_1"}

	key := g.GenerateKey(ScopeUsageRecord, params)
	assert.True(t, g.ValidateKey(ScopeUsageRecord, params, key))
	assert.False(t, g.ValidateKey(ScopeUsageRecord, map[string]interface{}{"tenant_id": "tn_2"}, key))
}

func TestProcessorInvoiceKeyChangesWithAmount(t *testing.T) {
	assert.Equal(t, ProcessorInvoiceKey("inv_1", 35400), ProcessorInvoiceKey("inv_1", 35400))
	assert.NotEqual(t, ProcessorInvoiceKey("inv_1", 35400), ProcessorInvoiceKey("inv_1", 36000))
}
