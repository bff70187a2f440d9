package dataplane

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

// Enforcer produces a verdict for one intent event.
type Enforcer interface {
	Enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error)
}

// BoundaryCache receives mirrored boundaries. The in-memory and sqlite
// stores both satisfy this subset of boundary.Store.
type BoundaryCache interface {
	Save(ctx context.Context, b *boundary.Boundary, rv *boundary.RuleVector) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ServerConfig configures the data-plane gRPC server.
type ServerConfig struct {
	// APIKey, when set, is required as a bearer credential on every RPC.
	APIKey string
	// MaxRecvMsgSize caps inbound payloads. Zero keeps the gRPC default.
	MaxRecvMsgSize int
}

// Server exposes enforcement and boundary mirroring over gRPC.
type Server struct {
	enforcer Enforcer
	cache    BoundaryCache
	logger   *slog.Logger
	grpc     *grpc.Server
}

// dataPlaneBackend is the registration contract for serviceDesc.
type dataPlaneBackend interface {
	enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error)
	install(ctx context.Context, req *installRequest) (*ack, error)
	remove(ctx context.Context, req *removeRequest) (*ack, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*dataPlaneBackend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Enforce", Handler: enforceHandler},
		{MethodName: "InstallBoundary", Handler: installHandler},
		{MethodName: "RemoveBoundary", Handler: removeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intentgate/v1/dataplane",
}

// NewServer builds the gRPC server and registers the data-plane
// service. cache may be nil when the server only enforces.
func NewServer(enforcer Enforcer, cache BoundaryCache, logger *slog.Logger, cfg ServerConfig) *Server {
	var opts []grpc.ServerOption
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.ChainUnaryInterceptor(authInterceptor(cfg.APIKey)))
	}

	s := &Server{
		enforcer: enforcer,
		cache:    cache,
		logger:   logger,
		grpc:     grpc.NewServer(opts...),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks serving connections on lis.
func (s *Server) Serve(lis net.Listener) error { return s.grpc.Serve(lis) }

// GracefulStop drains in-flight RPCs and stops the server.
func (s *Server) GracefulStop() { s.grpc.GracefulStop() }

func (s *Server) enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	result, err := s.enforcer.Enforce(ctx, ev)
	if err != nil {
		s.logger.Error("enforce rpc failed", "request_id", ev.ID, "error", err)
		return nil, status.Errorf(codes.Internal, "enforce: %v", err)
	}
	return result, nil
}

func (s *Server) install(ctx context.Context, req *installRequest) (*ack, error) {
	if s.cache == nil {
		return nil, status.Error(codes.Unimplemented, "boundary mirroring disabled")
	}
	if req.Boundary == nil || req.Anchors == nil {
		return nil, status.Error(codes.InvalidArgument, "boundary and anchors are required")
	}
	if err := s.cache.Save(ctx, req.Boundary, req.Anchors); err != nil {
		s.logger.Error("install rpc failed", "boundary_id", req.Boundary.ID, "error", err)
		return nil, status.Errorf(codes.Internal, "install: %v", err)
	}
	s.logger.Info("boundary mirrored",
		"boundary_id", req.Boundary.ID, "tenant_id", req.Boundary.TenantID)
	return &ack{OK: true}, nil
}

func (s *Server) remove(ctx context.Context, req *removeRequest) (*ack, error) {
	if s.cache == nil {
		return nil, status.Error(codes.Unimplemented, "boundary mirroring disabled")
	}
	if err := s.cache.Delete(ctx, req.TenantID, req.BoundaryID); err != nil {
		s.logger.Error("remove rpc failed", "boundary_id", req.BoundaryID, "error", err)
		return nil, status.Errorf(codes.Internal, "remove: %v", err)
	}
	return &ack{OK: true}, nil
}

func enforceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(intent.Event)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(dataPlaneBackend).enforce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodEnforce}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(dataPlaneBackend).enforce(ctx, req.(*intent.Event))
	})
}

func installHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(installRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(dataPlaneBackend).install(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInstall}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(dataPlaneBackend).install(ctx, req.(*installRequest))
	})
}

func removeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(removeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(dataPlaneBackend).remove(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRemove}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(dataPlaneBackend).remove(ctx, req.(*removeRequest))
	})
}

// authInterceptor rejects RPCs without the expected bearer token.
func authInterceptor(key string) grpc.UnaryServerInterceptor {
	want := []byte("Bearer " + key)
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing credentials")
		}
		values := md.Get("authorization")
		if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return handler(ctx, req)
	}
}
