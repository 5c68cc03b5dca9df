package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerapi"
	"google.golang.org/grpc"
)

// OutcomeReporter records worker outcomes.
type OutcomeReporter interface {
	ReportOutcome(ctx context.Context, processID string, outcome models.Outcome) (*models.ReportResult, error)
}

type GRPCServer struct {
	address     string
	reporter    OutcomeReporter
	logger      logging.Logger
	workerToken string
}

func NewGRPCServer(a string, l logging.Logger, reporter OutcomeReporter, workerToken string) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		reporter:    reporter,
		workerToken: workerToken,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.workerTokenInterceptor))
	workerapi.RegisterOutcomeReporterServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
