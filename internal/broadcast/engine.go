// Package broadcast turns connection lifecycle events and chat payloads into
// broadcast messages and fans them out to every registered connection.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/registry"
)

// clientIDLength is the number of UUID characters kept for a client ID.
const clientIDLength = 8

// Engine enriches chat traffic with sender metadata and delivers it to the
// registry. All methods are safe for concurrent use by the per-connection
// handling loops.
type Engine struct {
	registry *registry.Registry
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *metrics.RelayMetrics
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for message timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the collectors the engine updates.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator replaces the client ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine that delivers to reg.
func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		newID:    NewClientID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRelayMetrics(prometheus.NewRegistry())
	}
	return e
}

// NewClientID returns a short random identifier for a new connection.
func NewClientID() string {
	return uuid.NewString()[:clientIDLength]
}

// OnConnect registers handle under a fresh client ID and announces the join
// to every registered connection, the new one included.
func (e *Engine) OnConnect(handle registry.Handle) string {
	clientID := e.newID()
	entry, recipients := e.registry.Join(handle, clientID)
	e.metrics.ActiveConnections.Inc()

	e.logger.Info("Client joined",
		zap.String("client_id", clientID),
		zap.Int("active_users", len(recipients)))

	e.Deliver(Message{
		Type:        KindUserJoined,
		ClientID:    clientID,
		Username:    entry.DisplayName,
		Timestamp:   e.now(),
		ActiveUsers: len(recipients),
	}, recipients)

	return clientID
}

// OnMessage parses raw as a chat payload from clientID and broadcasts it to
// every registered connection, the sender included. A payload that cannot be
// parsed is not broadcast and the returned error wraps ErrMalformedPayload.
func (e *Engine) OnMessage(clientID string, raw []byte) error {
	in, err := ParseInbound(raw)
	if err != nil {
		e.metrics.MalformedPayloads.Inc()
		return fmt.Errorf("client %s: %w", clientID, err)
	}

	e.Deliver(Message{
		Type:        KindMessage,
		ClientID:    clientID,
		Username:    in.Username,
		Timestamp:   e.now(),
		Content:     *in.Content,
		MessageType: in.MessageType,
	}, e.registry.Snapshot())
	return nil
}

// OnDisconnect unregisters handle and announces the departure to the
// remaining connections. It reports false, and sends nothing, when handle was
// not registered.
func (e *Engine) OnDisconnect(handle registry.Handle, clientID string) bool {
	entry, recipients, ok := e.registry.Leave(handle)
	if !ok {
		e.logger.Debug("Disconnect for unregistered client", zap.String("client_id", clientID))
		return false
	}
	e.metrics.ActiveConnections.Dec()

	e.logger.Info("Client left",
		zap.String("client_id", entry.ClientID),
		zap.Int("active_users", len(recipients)))

	e.Deliver(Message{
		Type:        KindUserLeft,
		ClientID:    entry.ClientID,
		Username:    entry.DisplayName,
		Timestamp:   e.now(),
		ActiveUsers: len(recipients),
	}, recipients)
	return true
}

// Deliver sends msg to each recipient in order and returns the number of
// successful sends. A failing recipient is logged and skipped.
func (e *Engine) Deliver(msg Message, recipients []*registry.Entry) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		e.logger.Error("Failed to encode broadcast", zap.String("type", string(msg.Type)), zap.Error(err))
		return 0
	}
	e.metrics.BroadcastsTotal.WithLabelValues(string(msg.Type)).Inc()

	delivered := 0
	for _, recipient := range recipients {
		if err := e.safeSend(recipient, payload); err != nil {
			e.metrics.DeliveryFailures.Inc()
			level := zap.WarnLevel
			if errors.Is(err, registry.ErrHandleClosed) {
				level = zap.DebugLevel
			}
			e.logger.Log(level, "Error sending message",
				zap.String("client_id", recipient.ClientID),
				zap.String("type", string(msg.Type)),
				zap.Error(err))
			continue
		}
		delivered++
	}
	e.metrics.DeliveriesTotal.Add(float64(delivered))

	e.logger.Debug("Broadcast delivered",
		zap.String("type", string(msg.Type)),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", delivered))
	return delivered
}

func (e *Engine) safeSend(recipient *registry.Entry, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic in send: %v", r)
		}
	}()
	return recipient.Handle.Send(payload)
}

// Count returns the number of registered connections.
func (e *Engine) Count() int {
	return e.registry.Count()
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}
