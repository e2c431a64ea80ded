package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/icc-tech/bagrecorder/internal/command"
)

// ClientInterface is the control-surface contract every cmd/ command
// depends on, so tests can inject a mock in place of a real UDS
// connection.
type ClientInterface interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Status(ctx context.Context) (string, error)
}

// udsClient adapts command.UDSClient to ClientInterface, formatting
// results as the pretty-printed JSON the CLI prints to the operator.
type udsClient struct {
	inner *command.UDSClient
}

func newUDSClient(socketPath string) ClientInterface {
	return &udsClient{inner: command.NewUDSClient(socketPath, 10*time.Second)}
}

func (c *udsClient) Start(ctx context.Context) (string, error) {
	return c.call(ctx, "start")
}

func (c *udsClient) Stop(ctx context.Context) (string, error) {
	return c.call(ctx, "stop")
}

func (c *udsClient) Status(ctx context.Context) (string, error) {
	return c.call(ctx, "status")
}

func (c *udsClient) call(ctx context.Context, method string) (string, error) {
	resp, err := c.inner.Call(ctx, method, nil)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s: %s", method, resp.Error.Message)
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format result: %w", err)
	}
	return string(out), nil
}

// cli is the active control-surface client, resolved lazily against
// the --socket flag unless a test has injected one via SetClient.
var cli ClientInterface

// GetClient returns the active client, constructing the default
// UDS-backed one on first use.
func GetClient() ClientInterface {
	if cli == nil {
		cli = newUDSClient(socketPath)
	}
	return cli
}

// SetClient overrides the active client; used by tests to inject a mock.
func SetClient(c ClientInterface) {
	cli = c
}
