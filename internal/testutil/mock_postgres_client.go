package testutil

import (
	"context"

	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil)

// MockPostgresClient satisfies the transactional surface without a real
// database. In-memory stores apply writes immediately, so WithTx just runs
// the function; rollback semantics are not simulated.
type MockPostgresClient struct {
	logger *logger.Logger
}

func NewMockPostgresClient(logger *logger.Logger) postgres.IClient {
	return &MockPostgresClient{logger: logger}
}

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) GetQuerier(ctx context.Context) postgres.Querier {
	return nil
}
