// Package monitor publishes a read-only view of the bot after every
// cycle for the external dashboard consumer: account summary, open
// positions, and a rolling buffer of recent decisions. Consumers attach
// over websocket or poll the snapshot endpoint; nothing here mutates
// core state.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scalping-bot/internal/logger"
	"scalping-bot/internal/types"
)

type Snapshot struct {
	Time      time.Time            `json:"time"`
	Account   types.AccountSummary `json:"account"`
	Positions []types.Position     `json:"positions"`
	Recent    []types.CycleResult  `json:"recent_decisions"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Publisher struct {
	mu        sync.Mutex
	depth     int
	recent    []types.CycleResult
	account   types.AccountSummary
	positions []types.Position
	clients   map[*websocket.Conn]bool
}

func NewPublisher(depth int) *Publisher {
	if depth <= 0 {
		depth = 50
	}
	return &Publisher{
		depth:   depth,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Publish records the cycle outcome and broadcasts the refreshed
// snapshot to attached consumers.
func (p *Publisher) Publish(ctx context.Context, account types.AccountSummary, positions []types.Position, result types.CycleResult) {
	p.mu.Lock()
	p.account = account
	p.positions = positions
	p.recent = append(p.recent, result)
	if len(p.recent) > p.depth {
		p.recent = p.recent[len(p.recent)-p.depth:]
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	b, err := json.Marshal(snap)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to marshal monitor snapshot", err)
		return
	}
	p.broadcast(b)
}

// Snapshot returns the latest published view.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Publisher) snapshotLocked() Snapshot {
	recent := make([]types.CycleResult, len(p.recent))
	copy(recent, p.recent)
	positions := make([]types.Position, len(p.positions))
	copy(positions, p.positions)
	return Snapshot{
		Time:      time.Now().UTC(),
		Account:   p.account,
		Positions: positions,
		Recent:    recent,
	}
}

func (p *Publisher) broadcast(msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for client := range p.clients {
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			client.Close()
			delete(p.clients, client)
		}
	}
}

// Serve exposes /ws (websocket stream) and /snapshot (JSON poll) on
// addr until ctx is done. Blocks; run it in its own goroutine.
func (p *Publisher) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.ErrorWithErr(ctx, "Websocket upgrade failed", err)
			return
		}
		p.mu.Lock()
		p.clients[conn] = true
		p.mu.Unlock()
		// Discard-read pump: consumers never send, but reading is what
		// notices a departed peer before the next broadcast.
		go p.readUntilClosed(conn)
	})
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Snapshot())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Monitor endpoint listening", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (p *Publisher) readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			p.mu.Lock()
			delete(p.clients, conn)
			p.mu.Unlock()
			conn.Close()
			return
		}
	}
}
