package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRunStatus_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Status", mock.Anything).Return(`{"status":"running","topics":["/chatter"]}`, nil)

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "running")
	mockClient.AssertExpectations(t)
}

func TestRunStatus_Failure(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Status", mock.Anything).Return("", errors.New("daemon not running"))

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
	mockClient.AssertExpectations(t)
}
