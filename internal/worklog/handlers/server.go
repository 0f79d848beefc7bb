// Package handlers provides the gRPC and HTTP server implementations for
// the WorkLogService, bridging the transport layer and the work-log
// controller and translating between JSON-shaped structs and domain models.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gartstein/worklog/internal/worklog/auth"
	"github.com/gartstein/worklog/internal/worklog/models"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// WorkLogController defines the business logic interface
// that the gRPC/HTTP handlers will invoke.
type WorkLogController interface {
	Submit(ctx context.Context, sub *models.Submission) (*models.WorkLog, error)
	Record(ctx context.Context, sub *models.Submission) (*models.WorkLog, error)
	Edit(ctx context.Context, companyID, id uint, editor string, update models.AmountUpdate) (*models.WorkLog, error)
	Approve(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	Reject(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	Complete(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	ConfirmEdit(ctx context.Context, companyID, userID, id uint) (*models.WorkLog, error)
	ContestEdit(ctx context.Context, companyID, userID, id uint) (*models.WorkLog, error)
	Archive(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	ArchiveBulk(ctx context.Context, companyID uint, ids []uint) (int, error)

	GetWorkLog(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error)
	ListMyWorkLogs(ctx context.Context, companyID, userID uint) ([]*models.WorkLog, error)
	ListWorkers(ctx context.Context, companyID uint) ([]string, error)
	CostSummary(ctx context.Context, companyID uint) (*models.CostSummary, error)

	PreviewInvoice(ctx context.Context, companyID uint, ids []uint) (*models.Invoice, error)
	ConfirmInvoice(ctx context.Context, companyID uint, ids []uint) (*models.Invoice, error)
}

// Server holds references to both a gRPC server and an HTTP server.
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	logger       *zap.Logger
	grpcEndpoint string
	httpEndpoint string
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	return &Server{
		grpcServer: grpc.NewServer(grpcOpts...),
		httpServer: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:       logger,
		grpcEndpoint: fmt.Sprintf(":%d", grpcPort),
		httpEndpoint: fmt.Sprintf(":%d", httpPort),
	}
}

// RegisterGRPCHandler registers the gRPC handler for the WorkLogService.
func (s *Server) RegisterGRPCHandler(h *WorkLogHandler) {
	RegisterWorkLogServiceServer(s.grpcServer, h)
}

// RegisterHTTPGateway mounts the REST gateway. Routes call the handler
// in-process behind the same role policy as the gRPC interceptor.
func (s *Server) RegisterHTTPGateway(h *WorkLogHandler, interceptor *auth.Interceptor, authenticator *auth.Authenticator) error {
	gw, err := NewGateway(h, interceptor, authenticator)
	if err != nil {
		return err
	}
	s.httpServer.Handler = gw
	s.httpServer.Addr = s.httpEndpoint
	return nil
}

// Start listens on the configured ports and serves until Stop or the first error.
func (s *Server) Start() error {
	grpcLis, err := net.Listen("tcp", s.grpcEndpoint)
	if err != nil {
		return fmt.Errorf("gRPC listen error: %w", err)
	}
	httpLis, err := net.Listen("tcp", s.httpEndpoint)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("HTTP listen error: %w", err)
	}
	return s.Serve(grpcLis, httpLis)
}

// Serve runs the gRPC and HTTP servers concurrently on the given listeners,
// returning on the first error.
func (s *Server) Serve(grpcLis, httpLis net.Listener) error {
	var wg sync.WaitGroup
	wg.Add(2)
	errChan := make(chan error, 2)

	go func() {
		defer wg.Done()
		s.logger.Info("Starting gRPC server", zap.String("endpoint", grpcLis.Addr().String()))
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			errChan <- fmt.Errorf("gRPC serve error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		s.logger.Info("Starting HTTP server", zap.String("endpoint", httpLis.Addr().String()))
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP serve error: %w", err)
		}
	}()

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down both gRPC and HTTP servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.logger.Info("Servers stopped")
}
