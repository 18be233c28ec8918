package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

// WorkflowQueryService is the full gRPC service name of the read-only query API.
const WorkflowQueryService = "dipr.releaseorders.v1.WorkflowQuery"

// WorkflowQueryServer answers read-only workflow queries. Requests carry an
// "id" field; responses are the JSON form of the document.
type WorkflowQueryServer interface {
	GetAdvertisement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAllocations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetNoteSheet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var workflowQueryDesc = grpc.ServiceDesc{
	ServiceName: WorkflowQueryService,
	HandlerType: (*WorkflowQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAdvertisement", Handler: unaryHandler("GetAdvertisement", WorkflowQueryServer.GetAdvertisement)},
		{MethodName: "ListAllocations", Handler: unaryHandler("ListAllocations", WorkflowQueryServer.ListAllocations)},
		{MethodName: "GetNoteSheet", Handler: unaryHandler("GetNoteSheet", WorkflowQueryServer.GetNoteSheet)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dipr/releaseorders/v1/workflow_query.proto",
}

func unaryHandler(
	method string,
	call func(WorkflowQueryServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WorkflowQueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + WorkflowQueryService + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(WorkflowQueryServer), ctx, req.(*structpb.Struct))
		})
	}
}

// GRPCHandler implements WorkflowQueryServer over the workflow services.
type GRPCHandler struct {
	svc    Services
	logger zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc Services, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		svc:    svc,
		logger: logger.With().Str("handler", "grpc").Logger(),
	}
}

// NewGRPCServer builds a server exposing the query service, the standard
// health service and reflection.
func NewGRPCServer(h *GRPCHandler, apiKey string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(h.logger),
		requestInfoInterceptor,
		loggingInterceptor(h.logger),
		apiKeyInterceptor(apiKey),
	))
	srv.RegisterService(&workflowQueryDesc, h)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(WorkflowQueryService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv, hs
}

// GetAdvertisement returns one advertisement.
func (h *GRPCHandler) GetAdvertisement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := docref.Parse(docref.Advertisement, "id", req.GetFields()["id"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	ad, err := h.svc.Advertisements.GetAdvertisement(ctx, ref.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ad)
}

// ListAllocations returns the allocations of an advertisement under "allocations".
func (h *GRPCHandler) ListAllocations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	allocations, err := h.svc.Allocations.ListByAdvertisement(ctx, req.GetFields()["id"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"allocations": allocations})
}

// GetNoteSheet returns one note sheet.
func (h *GRPCHandler) GetNoteSheet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := docref.Parse(docref.NoteSheet, "id", req.GetFields()["id"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	ns, err := h.svc.NoteSheets.GetNoteSheet(ctx, ref.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ns)
}

// toStruct converts v to a Struct through its JSON form so field names match
// the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return s, nil
}

// toStatus maps an application error to a gRPC status.
func toStatus(err error) error {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errors.Message(err))
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errors.Message(err))
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errors.Message(err))
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errors.Message(err))
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, "service unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
