// Package grpcserver exposes the book over gRPC: the standard health
// service, server reflection and a small Book service whose replies are
// protobuf Struct documents.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"mbp10/domain/orderbook"
	"mbp10/service"
)

// PipelineService is the health service name tracking the event pipeline.
const PipelineService = "mbp10.pipeline"

// BookReader is the read side of the book service.
type BookReader interface {
	Latest() (service.View, bool)
	Running() bool
}

type Server struct {
	book   BookReader
	runID  string
	grpc   *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

func NewServer(book BookReader, runID string, log zerolog.Logger) *Server {
	s := &Server{
		book:   book,
		runID:  runID,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    log.With().Str("component", "grpc").Logger(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&bookServiceDesc, s)
	reflection.Register(s.grpc)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(bookServiceName, healthpb.HealthCheckResponse_SERVING)
	s.SetPipelineServing(false)
	return s
}

// SetPipelineServing reports the pipeline as SERVING while events flow.
func (s *Server) SetPipelineServing(up bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(PipelineService, st)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis and stops gracefully when ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", lis.Addr().String()).Msg("listening")
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}

// -------------------- Book service --------------------

const bookServiceName = "mbp10.v1.Book"

// BookServer is the handler set of the Book service.
type BookServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var bookServiceDesc = grpc.ServiceDesc{
	ServiceName: bookServiceName,
	HandlerType: (*BookServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mbp10/v1/book.proto",
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + bookServiceName + "/GetSnapshot",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GetSnapshot returns the latest MBP-10 view.
func (s *Server) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	v, ok := s.book.Latest()
	if !ok {
		return nil, status.Error(codes.Unavailable, "no events processed yet")
	}
	return structpb.NewStruct(map[string]any{
		"run_id":  s.runID,
		"seq":     v.Seq,
		"row":     v.Row,
		"ts_recv": v.Snapshot.TsRecv,
		"orders":  v.Orders,
		"running": s.book.Running(),
		"bids":    levels(v.Snapshot.Bids[:]),
		"asks":    levels(v.Snapshot.Asks[:]),
	})
}

func levels(rows []orderbook.Level) []any {
	out := make([]any, 0, len(rows))
	for _, l := range rows {
		if l.Count == 0 {
			break
		}
		out = append(out, map[string]any{
			"px": l.Price.String(),
			"sz": l.Size,
			"ct": l.Count,
		})
	}
	return out
}
