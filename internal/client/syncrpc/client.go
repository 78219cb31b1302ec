package syncrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// Client talks to a Server. It satisfies Queue, so a synchronizer can drain
// a queue owned by another process.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	token  string
}

var _ Queue = (*Client)(nil)

// NewClient connects lazily to target. Extra options are appended to the
// defaults (plaintext transport, token interceptor).
func NewClient(target, token string, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{token: token}

	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.tokenInterceptor),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("sync rpc client: %w", err)
	}
	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	return c, nil
}

func (c *Client) tokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, TokenHeaderName, c.token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping reports whether the queue service is serving.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("sync rpc service is %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) GetPendingChanges(ctx context.Context) ([]models.SyncOperation, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, methodList, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	ops := make([]models.SyncOperation, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		op, err := decodeOperation(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (c *Client) GetPendingChangeCount(ctx context.Context) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.conn.Invoke(ctx, methodCount, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

func (c *Client) RemoveSyncedChange(ctx context.Context, id int64) error {
	return c.conn.Invoke(ctx, methodRemove, wrapperspb.Int64(id), new(emptypb.Empty))
}

func (c *Client) IncrementRetryCount(ctx context.Context, id int64) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.conn.Invoke(ctx, methodIncrementRetry, wrapperspb.Int64(id), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}
