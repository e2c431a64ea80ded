package cmd

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock implementing ClientInterface, shared
// across this package's command tests.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Start(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Stop(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Status(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
