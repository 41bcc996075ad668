// Package api exposes the exchange kernel over HTTP and websocket.
// No authentication: every trader, order, and position is public.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"rindex-exchange/internal/config"
	"rindex-exchange/internal/engine"
	"rindex-exchange/internal/ws"
)

// Server wires the engine and the hub into an HTTP handler.
type Server struct {
	engine   *engine.Engine
	hub      *ws.Hub
	cfg      *config.Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the API server.
func NewServer(eng *engine.Engine, hub *ws.Hub, cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		engine: eng,
		hub:    hub,
		cfg:    cfg,
		log:    log.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the exchange is open by design, any origin may connect
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/traders", func(r chi.Router) {
			r.Get("/", s.handleGetTraders)
			r.Post("/", s.handleRegisterTrader)
			r.Get("/{traderID}", s.handleGetTrader)
			r.Get("/{traderID}/position", s.handleGetTraderPosition)
			r.Get("/{traderID}/trades", s.handleGetTraderTrades)
			r.Post("/{traderID}/close", s.handleClosePosition)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handleSubmitOrder)
			r.Delete("/{orderID}", s.handleCancelOrder)
		})

		r.Route("/market", func(r chi.Router) {
			r.Get("/orderbook", s.handleGetOrderBook)
			r.Get("/orderbook/level", s.handleGetOrdersAtPrice)
			r.Get("/positions", s.handleGetPositions)
			r.Get("/oi", s.handleGetOpenInterest)
			r.Get("/trades", s.handleGetTrades)
			r.Get("/liquidations", s.handleGetLiquidations)
			r.Get("/stats", s.handleGetStats)
			r.Get("/candles", s.handleGetCandles)
		})
	})
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("api listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade", "error", err)
		return
	}
	ws.NewClient(s.hub, conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
