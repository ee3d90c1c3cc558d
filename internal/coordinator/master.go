package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/domain"
)

// MasterConfig assembles a master role.
type MasterConfig struct {
	Log        *zap.Logger
	ListenAddr string

	// WorkerCount is the number of workers the roster is partitioned for.
	// Connections beyond it are turned away.
	WorkerCount int

	Roster   []domain.Credential
	Registry *Registry
}

// Master listens for workers, hands each exactly one roster partition and
// funnels their token updates into the registry. It holds no session state
// of its own.
type Master struct {
	log      *zap.Logger
	addr     string
	registry *Registry

	upgrader websocket.Upgrader

	mu         sync.Mutex
	partitions [][]domain.Credential
	nextSlice  int
}

func NewMaster(cfg MasterConfig) (*Master, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Registry == nil {
		return nil, errors.New("master requires a registry")
	}

	roster := cfg.Registry.Roster(cfg.Roster)
	partitions, err := domain.Partition(roster, cfg.WorkerCount)
	if err != nil {
		return nil, fmt.Errorf("partition roster: %w", err)
	}

	return &Master{
		log:      log,
		addr:     cfg.ListenAddr,
		registry: cfg.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
		},
		partitions: partitions,
	}, nil
}

// Run serves workers until ctx is canceled, then shuts the listener down.
// The registry actor runs inside; callers Flush after Run returns.
func (m *Master) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		m.handleWorker(ctx, w, r)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		m.registry.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("master listen on %s: %w", m.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		m.log.Warn("master shutdown", zap.Error(err))
	}
	<-registryDone
	return nil
}

// claimPartition hands out partitions in connection order.
func (m *Master) claimPartition() ([]domain.Credential, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextSlice >= len(m.partitions) {
		return nil, 0, false
	}
	index := m.nextSlice
	m.nextSlice++
	return m.partitions[index], index, true
}

func (m *Master) handleWorker(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("worker upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// First message must be hello.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		m.log.Warn("worker hello read failed", zap.Error(err))
		return
	}
	env, err := decodeEnvelope(raw)
	if err != nil || env.Type != msgHello {
		m.log.Warn("worker sent no hello", zap.String("remote", r.RemoteAddr))
		return
	}
	var hello helloPayload
	if err := decodePayload(env, &hello); err != nil {
		m.log.Warn("worker hello unparseable", zap.Error(err))
		return
	}

	partition, index, ok := m.claimPartition()
	if !ok {
		m.log.Warn("turning away extra worker",
			zap.String("remote", r.RemoteAddr), zap.String("scenario", hello.Scenario))
		return
	}
	m.log.Info("worker connected",
		zap.Int("partition", index),
		zap.Int("users", len(partition)),
		zap.String("scenario", hello.Scenario),
		zap.String("remote", r.RemoteAddr))

	payload, err := encodeMessage(msgLoadUsers, loadUsersPayload{Users: toWireCredentials(partition)})
	if err != nil {
		m.log.Error("encode load_users", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.log.Warn("send load_users failed", zap.Int("partition", index), zap.Error(err))
		return
	}

	m.readUpdates(ctx, conn, index)
}

// readUpdates drains update_tokens messages from one worker until the
// connection drops or the run ends.
func (m *Master) readUpdates(ctx context.Context, conn *websocket.Conn, index int) {
	// Unblock the blocking read when the run ends.
	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "run over"), deadline)
		_ = conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warn("worker connection lost", zap.Int("partition", index), zap.Error(err))
			}
			return
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			m.log.Warn("bad message from worker", zap.Int("partition", index), zap.Error(err))
			continue
		}
		if env.Type != msgUpdateTokens {
			m.log.Warn("unexpected message type from worker",
				zap.Int("partition", index), zap.String("type", env.Type))
			continue
		}

		var update domain.TokenUpdate
		if err := decodePayload(env, &update); err != nil {
			m.log.Warn("bad token update from worker", zap.Int("partition", index), zap.Error(err))
			continue
		}
		if err := m.registry.Submit(ctx, update); err != nil {
			return
		}
	}
}
