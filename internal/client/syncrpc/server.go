package syncrpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

type Server struct {
	address string
	queue   Queue
	token   string
	logger  logging.Logger

	srv    *grpc.Server
	health *health.Server
}

// NewServer serves queue on address. A non-empty token must be presented
// by every caller in the sync_token metadata key.
func NewServer(address string, queue Queue, token string, l logging.Logger) *Server {
	s := &Server{
		address: address,
		queue:   queue,
		token:   token,
		logger:  l.With("module", "sync_rpc_server"),
		health:  health.NewServer(),
	}

	s.srv = grpc.NewServer(grpc.ChainUnaryInterceptor(s.tokenInterceptor))
	s.srv.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping sync rpc server")
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.logger.Info(ctx, "starting sync rpc server", "address", lis.Addr().String())

	if err := s.srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

func (s *Server) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, "sync rpc failed", "op", op, "error", err)
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) list(ctx context.Context, _ *emptypb.Empty) (proto.Message, error) {
	ops, err := s.queue.GetPendingChanges(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(ops))}
	for _, op := range ops {
		v, err := encodeOperation(op)
		if err != nil {
			return nil, s.internal(ctx, "list", err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(v))
	}
	return out, nil
}

func (s *Server) count(ctx context.Context, _ *emptypb.Empty) (proto.Message, error) {
	n, err := s.queue.GetPendingChangeCount(ctx)
	if err != nil {
		return nil, s.internal(ctx, "count", err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

func (s *Server) remove(ctx context.Context, in *wrapperspb.Int64Value) (proto.Message, error) {
	if err := s.queue.RemoveSyncedChange(ctx, in.GetValue()); err != nil {
		return nil, s.internal(ctx, "remove", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) incrementRetry(ctx context.Context, in *wrapperspb.Int64Value) (proto.Message, error) {
	n, err := s.queue.IncrementRetryCount(ctx, in.GetValue())
	if err != nil {
		return nil, s.internal(ctx, "increment_retry", err)
	}
	return wrapperspb.Int64(int64(n)), nil
}
