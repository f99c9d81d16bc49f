package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docbench/internal/domain"
	"docbench/internal/port"
)

// MockProviderAdapter is a mock implementation of port.ProviderAdapter.
type MockProviderAdapter struct {
	mock.Mock
}

func (m *MockProviderAdapter) Run(ctx context.Context, doc domain.Document) (port.RawResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(port.RawResult), args.Error(1)
}
