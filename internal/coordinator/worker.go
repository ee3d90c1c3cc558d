package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/domain"
)

const dialRetryInterval = 2 * time.Second

// WorkerConfig assembles a worker's link to the master.
type WorkerConfig struct {
	Log *zap.Logger

	// MasterURL is the master's websocket endpoint, e.g.
	// ws://127.0.0.1:5557/ws.
	MasterURL string

	// Scenario names the driver this worker runs; announced in hello so
	// the master's logs say what each partition is doing.
	Scenario string
}

// Worker is the worker side of the coordinator link. It receives exactly
// one partition and then only ever sends token updates. The writer
// goroutine is the sole writer on the connection.
type Worker struct {
	log       *zap.Logger
	conn      *websocket.Conn
	updates   chan domain.TokenUpdate
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the master, retrying until it is up or ctx ends, then
// performs the hello / load_users exchange and returns the partition this
// worker owns.
func Dial(ctx context.Context, cfg WorkerConfig) (*Worker, []domain.Credential, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := dialMaster(ctx, log, cfg.MasterURL)
	if err != nil {
		return nil, nil, err
	}

	hello, err := encodeMessage(msgHello, helloPayload{Scenario: cfg.Scenario})
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("send hello: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("read load_users: %w", err)
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if env.Type != msgLoadUsers {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("expected load_users, got %s", env.Type)
	}
	var payload loadUsersPayload
	if err := decodePayload(env, &payload); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	partition := fromWireCredentials(payload.Users)
	log.Info("partition received", zap.Int("users", len(partition)))

	w := &Worker{
		log:     log,
		conn:    conn,
		updates: make(chan domain.TokenUpdate, 256),
		done:    make(chan struct{}),
	}
	go w.writeLoop()
	return w, partition, nil
}

func dialMaster(ctx context.Context, log *zap.Logger, masterURL string) (*websocket.Conn, error) {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, masterURL, nil)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial master %s: %w", masterURL, ctx.Err())
		}
		log.Info("master not reachable yet, retrying",
			zap.String("url", masterURL), zap.Error(err))

		timer := time.NewTimer(dialRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial master %s: %w", masterURL, ctx.Err())
		case <-timer.C:
		}
	}
}

// SendTokenUpdate queues one update for the master. Drops the update with
// a log line when the queue is full rather than stalling a session.
func (w *Worker) SendTokenUpdate(update domain.TokenUpdate) {
	select {
	case w.updates <- update:
	case <-w.done:
	default:
		w.log.Warn("token update queue full, dropping", zap.String("user", update.Username))
	}
}

func (w *Worker) writeLoop() {
	for {
		select {
		case <-w.done:
			return
		case update := <-w.updates:
			raw, err := encodeMessage(msgUpdateTokens, update)
			if err != nil {
				w.log.Error("encode token update", zap.Error(err))
				continue
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				w.log.Warn("send token update failed", zap.Error(err))
				return
			}
		}
	}
}

// Close flushes nothing: queued updates not yet written are lost, which is
// acceptable because the registry also receives updates throughout the run.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "worker done"), deadline)
		_ = w.conn.Close()
	})
}
