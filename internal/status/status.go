// Package status exposes the latest engine decision over HTTP.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mabot/internal/engine"
	"mabot/internal/state"

	"github.com/gin-gonic/gin"
)

// Board keeps the most recent decision and per-result counters.
type Board struct {
	mu       sync.RWMutex
	started  time.Time
	last     *engine.Decision
	counts   map[string]int
	position func() state.Position
}

func NewBoard(position func() state.Position) *Board {
	return &Board{
		started:  time.Now().UTC(),
		counts:   make(map[string]int),
		position: position,
	}
}

func (b *Board) Observe(decision engine.Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &decision
	b.counts[decision.Result]++
}

type Snapshot struct {
	Started  time.Time        `json:"started"`
	Cycles   int              `json:"cycles"`
	Results  map[string]int   `json:"results"`
	Last     *engine.Decision `json:"last,omitempty"`
	Position *positionView    `json:"position,omitempty"`
}

type positionView struct {
	State  state.PositionState `json:"state"`
	Amount string              `json:"amount"`
	Source state.Source        `json:"source"`
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := Snapshot{Started: b.started, Results: make(map[string]int, len(b.counts))}
	for result, n := range b.counts {
		snap.Results[result] = n
		snap.Cycles += n
	}
	if b.last != nil {
		last := *b.last
		snap.Last = &last
	}
	if b.position != nil {
		p := b.position()
		snap.Position = &positionView{State: p.State, Amount: p.Amount.String(), Source: p.Source}
	}
	return snap
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(addr string, board *Board) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, board.Snapshot())
	})
	return &Server{addr: addr, router: router}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server shutdown error", "error", err)
		return err
	}
	slog.Info("status server stopped")
	return nil
}
