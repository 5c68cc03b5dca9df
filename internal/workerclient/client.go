// Package workerclient reports extraction outcomes to the ingestion server
// on behalf of a worker.
package workerclient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type Client struct {
	conn   *grpc.ClientConn
	client workerapi.OutcomeReporterClient
	token  string
}

func (c *Client) workerTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = metadata.AppendToOutgoingContext(ctx, common.WorkerTokenHeaderName, c.token)
	return invoker(ctx, method, req, reply, cc, opts...)
}

// New connects lazily to addr. Extra dial options are appended after the
// defaults.
func New(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	if token == "" {
		return nil, errors.New("worker token is required")
	}
	c := &Client{token: token}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.workerTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = workerapi.NewOutcomeReporterClient(conn)
	return c, nil
}

func (c *Client) report(ctx context.Context, req *workerapi.ReportOutcomeRequest) (*workerapi.ReportOutcomeResponse, error) {
	return c.client.ReportOutcome(ctx, req)
}

// Processing acknowledges that the worker picked the process up.
func (c *Client) Processing(ctx context.Context, processID string) (*workerapi.ReportOutcomeResponse, error) {
	return c.report(ctx, &workerapi.ReportOutcomeRequest{ProcessID: processID, Status: "processing"})
}

func (c *Client) Completed(ctx context.Context, processID string, data json.RawMessage) (*workerapi.ReportOutcomeResponse, error) {
	return c.report(ctx, &workerapi.ReportOutcomeRequest{ProcessID: processID, Status: "completed", Data: data})
}

func (c *Client) Failed(ctx context.Context, processID, message string) (*workerapi.ReportOutcomeResponse, error) {
	return c.report(ctx, &workerapi.ReportOutcomeRequest{ProcessID: processID, Status: "failed", Error: message})
}

func (c *Client) NotACV(ctx context.Context, processID string) (*workerapi.ReportOutcomeResponse, error) {
	return c.report(ctx, &workerapi.ReportOutcomeRequest{ProcessID: processID, Status: "not-a-cv"})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
