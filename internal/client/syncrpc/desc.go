// Package syncrpc exposes the sync queue over gRPC so the synchronizer can
// run in another process. Messages are protobuf well-known types; a queued
// operation travels as a google.protobuf.Struct holding its JSON form.
package syncrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

const ServiceName = "tripkeeper.syncqueue.v1.SyncQueue"

const (
	methodList           = "/" + ServiceName + "/List"
	methodCount          = "/" + ServiceName + "/Count"
	methodRemove         = "/" + ServiceName + "/Remove"
	methodIncrementRetry = "/" + ServiceName + "/IncrementRetry"
)

// Queue is the sync queue surface served to the synchronizer.
type Queue interface {
	GetPendingChanges(ctx context.Context) ([]models.SyncOperation, error)
	GetPendingChangeCount(ctx context.Context) (int, error)
	RemoveSyncedChange(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) (int, error)
}

// unary builds a method descriptor the way protoc-gen-go-grpc does, with
// the request type fixed by newReq.
func unary[Req proto.Message](name string, newReq func() Req, call func(s *Server, ctx context.Context, req Req) (proto.Message, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty         { return new(emptypb.Empty) }
func newInt64() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) }

// serviceDesc is written by hand; its handlers expect a *Server.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("List", newEmpty, (*Server).list),
		unary("Count", newEmpty, (*Server).count),
		unary("Remove", newInt64, (*Server).remove),
		unary("IncrementRetry", newInt64, (*Server).incrementRetry),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripkeeper/syncqueue/v1/syncqueue.proto",
}

func encodeOperation(op models.SyncOperation) (*structpb.Struct, error) {
	if len(op.Payload) == 0 {
		op.Payload = nil
	}
	b, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := s.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("encode operation %d: %w", op.ID, err)
	}
	return s, nil
}

func decodeOperation(s *structpb.Struct) (models.SyncOperation, error) {
	var op models.SyncOperation
	b, err := s.MarshalJSON()
	if err != nil {
		return op, err
	}
	if err := json.Unmarshal(b, &op); err != nil {
		return op, fmt.Errorf("decode operation: %w", err)
	}
	if string(op.Payload) == "null" {
		op.Payload = nil
	}
	return op, nil
}
