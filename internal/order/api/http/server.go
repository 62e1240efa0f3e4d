package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"menuqr/internal/order/adapter/broker"
	database "menuqr/internal/order/adapter/db"
	"menuqr/internal/order/api/http/handle"
	"menuqr/internal/order/app/core"
	"menuqr/internal/order/app/services"
	"menuqr/internal/xpkg/config"
	"menuqr/internal/xpkg/db"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
	"menuqr/internal/xpkg/rabbitmq"
)

// Server wires the engine: Postgres repo, RabbitMQ publisher, the order
// service and the REST command surface.
type Server struct {
	cfg   *config.Config
	mylog *logger.Logger
	mets  *metrics.Registry

	mux       *http.ServeMux
	srv       *http.Server
	pool      *pgxpool.Pool
	publisher *broker.Publisher
}

func NewServer(cfg *config.Config, mets *metrics.Registry, mylog *logger.Logger) *Server {
	return &Server{
		cfg:   cfg,
		mylog: mylog,
		mets:  mets,
		mux:   http.NewServeMux(),
	}
}

// Run connects the collaborators, registers routes and serves until ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	pool, err := db.Connect(ctx, &s.cfg.Database, s.mylog)
	if err != nil {
		s.mylog.Action("db_connection_failed").Error("Failed to connect to database", err)
		return fmt.Errorf("%w: %v", core.ErrDBConn, err)
	}
	s.pool = pool

	rmq, err := rabbitmq.Connect(&s.cfg.RabbitMQ, s.mylog)
	if err != nil {
		s.mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		pool.Close()
		return fmt.Errorf("%w: %v", core.ErrMBConn, err)
	}
	s.publisher = broker.NewPublisher(rmq, s.mylog)

	s.configure()

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.mylog.Action("server_started").Info(fmt.Sprintf("Listening on :%d", s.cfg.Server.Port))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		s.closeCollaborators()
		return err
	}
}

func (s *Server) configure() {
	orderRepo := database.NewOrderRepo(s.pool, s.mylog)
	orderService := services.NewOrderService(orderRepo, s.publisher, s.mets, s.mylog)
	orderHandler := handle.NewOrderHandler(orderService, s.mylog)

	s.mux.Handle("POST /orders", orderHandler.Create())
	s.mux.Handle("GET /orders", orderHandler.List())
	s.mux.Handle("GET /orders/{id}", orderHandler.Get())
	s.mux.Handle("PATCH /orders/{id}/state", orderHandler.ChangeState())
	s.mux.Handle("POST /orders/{id}/confirm", orderHandler.Confirm())
	s.mux.Handle("PATCH /orders/items/{itemID}/state", orderHandler.ChangeItemState())
	s.mux.Handle("GET /orders/{id}/history", orderHandler.History())
	s.mux.Handle("DELETE /orders/{id}", orderHandler.Delete())

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	s.mux.Handle("GET /metrics", s.mets.Handler())
}

func (s *Server) shutdown() error {
	s.mylog.Action("graceful_shutdown_started").Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), core.WaitTime*time.Second)
	defer cancel()

	var firstErr error
	if s.srv != nil {
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Action("graceful_shutdown_failed").Error("Failed to shut down HTTP server gracefully", err)
			firstErr = err
		}
	}
	s.closeCollaborators()

	if firstErr == nil {
		s.mylog.Action("graceful_shutdown_completed").Info("HTTP server shut down gracefully")
	}
	return firstErr
}

func (s *Server) closeCollaborators() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
