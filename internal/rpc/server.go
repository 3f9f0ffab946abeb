package rpc

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/service"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/view"
)

// WatcherServer serves live resource snapshots to gRPC clients.
type WatcherServer struct {
	grpc      *grpc.Server
	auth      *service.Auth
	resources *service.Resources
	hub       *hub.Hub
	logger    *zap.SugaredLogger
}

func NewGRPCServer(lc fx.Lifecycle, cfg *config.Config, auth *service.Auth, resources *service.Resources, h *hub.Hub, logger *zap.SugaredLogger) *WatcherServer {
	instance := New(auth, resources, h, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.Host+":"+cfg.GRPCPort)
			if err != nil {
				return errors.Wrap(err, "failed to listen")
			}
			go func() {
				if err := instance.Serve(lis); err != nil {
					logger.Errorw("failed to serve", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping GRPC server.")
			return instance.Shutdown(ctx)
		},
	})

	return instance
}

func New(auth *service.Auth, resources *service.Resources, h *hub.Hub, logger *zap.SugaredLogger) *WatcherServer {
	instance := &WatcherServer{
		auth:      auth,
		resources: resources,
		hub:       h,
		logger:    logger,
	}
	instance.grpc = grpc.NewServer(grpc.StreamInterceptor(instance.logStream))
	RegisterResourceWatcher(instance.grpc, instance)
	return instance
}

func (s *WatcherServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *WatcherServer) Stop() {
	s.grpc.Stop()
}

// Shutdown ends open watch streams through the hub, then drains the server.
// Connections still open when ctx is done are closed forcibly.
func (s *WatcherServer) Shutdown(ctx context.Context) error {
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warnw("drain snapshot hub", "error", err)
	}

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
		return ctx.Err()
	}
}

// Watch sends the current derived view, then a fresh one after every change.
// It ends cleanly when the client goes away or the user signs out.
func (s *WatcherServer) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()

	user, err := s.authenticate(ctx)
	if err != nil {
		return err
	}

	sub, err := s.resources.Subscribe(ctx, user.ID)
	if err != nil {
		if errors.Is(err, hub.ErrClosed) {
			return status.Error(codes.Unavailable, "server is shutting down")
		}
		return status.Error(codes.Internal, "Failed to load resources")
	}
	defer sub.Close()

	query := view.ParseQuery(req.Search, req.Category, req.Sort)
	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			if snap.Err != nil {
				s.logger.Errorw("watch", "user_id", user.ID, "error", snap.Err)
				return status.Error(codes.Unavailable, "Failed to load resources")
			}
			if err := stream.SendMsg(&WatchEvent{Resources: query.Apply(snap.Resources)}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *WatcherServer) authenticate(ctx context.Context) (*db.User, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	tokens := md.Get(tokenKey)
	if len(tokens) == 0 || tokens[0] == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	user, err := s.auth.Authenticate(ctx, tokens[0])
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		s.logger.Errorw("authenticate", "error", err)
		return nil, status.Error(codes.Internal, "authentication failed")
	}
	return user, nil
}

func (s *WatcherServer) logStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	err := handler(srv, ss)
	if err != nil {
		s.logger.Debugw("stream ended", "method", info.FullMethod, "error", err)
	}
	return err
}
