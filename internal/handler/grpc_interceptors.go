package handler

import (
	"context"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

// requestInfoInterceptor records the caller's address and platform from the
// incoming metadata so audit records name the origin.
func requestInfoInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	origin := requestinfo.Info{Path: info.FullMethod, Platform: "grpc"}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		origin.IP = p.Addr.String()
		if host, _, err := net.SplitHostPort(origin.IP); err == nil {
			origin.IP = host
		}
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := first(md, "x-forwarded-for"); v != "" {
			ip, _, _ := strings.Cut(v, ",")
			origin.IP = strings.TrimSpace(ip)
		}
		if v := first(md, "platform"); v != "" {
			origin.Platform = v
		}
	}
	return handler(requestinfo.With(ctx, origin), req)
}

// apiKeyInterceptor requires the x-api-key metadata entry to equal key. Health
// checks and reflection are exempt. An empty key disables the check.
func apiKeyInterceptor(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if key == "" || !strings.HasPrefix(info.FullMethod, "/"+WorkflowQueryService+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if first(md, "x-api-key") != key {
			return nil, status.Error(codes.Unauthenticated, "invalid API key")
		}
		return handler(ctx, req)
	}
}

func loggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		evt := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			evt = log.Error().Err(err)
		}
		evt.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call handled")
		return resp, err
	}
}

func recoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("method", info.FullMethod).
					Msg("Panic recovered")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
