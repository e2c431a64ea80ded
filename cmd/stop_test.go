package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRunStop_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Stop", mock.Anything).Return(`{"success":true,"message":"recording stopped"}`, nil)

	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "recording stopped")
	mockClient.AssertExpectations(t)
}

func TestRunStop_Failure(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Stop", mock.Anything).Return("", errors.New("connection refused"))

	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	mockClient.AssertExpectations(t)
}
