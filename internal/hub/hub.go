// Package hub is the coordination point between the connection layer and the
// router: connection lifecycle events and inbound messages are queued onto
// buffered channels and drained by a single goroutine, so routing sees them
// in arrival order.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"tutorhub/internal/directory"
	"tutorhub/internal/router"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Hub feeds the router from buffered event channels. Messages and lifecycle
// events are processed by one goroutine; buffers absorb bursts without
// blocking connection readers.
type Hub struct {
	messageCh    chan *types.Message
	connectCh    chan *connectRequest
	disconnectCh chan interfaces.Channel
	shutdownCh   chan struct{}

	router *router.Router

	running bool
	mu      sync.RWMutex
}

// connectRequest carries a registration and reports its outcome back to the
// websocket handler, which needs to reject duplicate sessions synchronously.
type connectRequest struct {
	participant *directory.Participant
	result      chan error
}

// NewHub creates a hub over the given router.
func NewHub(r *router.Router) *Hub {
	return &Hub{
		messageCh:    make(chan *types.Message, 1000),
		connectCh:    make(chan *connectRequest, 100),
		disconnectCh: make(chan interfaces.Channel, 100),
		shutdownCh:   make(chan struct{}),
		router:       r,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	slog.Info("message hub starting")
	go h.run(ctx)
	return nil
}

// Stop shuts the hub down. Queued events that have not been drained yet are
// dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}
	return nil
}

// Submit queues an inbound message for routing.
func (h *Hub) Submit(msg *types.Message) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.messageCh <- msg:
		return nil
	default:
		return ErrMessageChannelFull
	}
}

// Connect registers a participant and waits for the outcome, so the caller
// can refuse a duplicate session on the spot.
func (h *Hub) Connect(participant *directory.Participant) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	req := &connectRequest{participant: participant, result: make(chan error, 1)}
	select {
	case h.connectCh <- req:
	default:
		return ErrConnectChannelFull
	}

	select {
	case err := <-req.result:
		return err
	case <-h.shutdownCh:
		return ErrHubNotRunning
	}
}

// Disconnect queues a departure, resolved later by channel handle.
func (h *Hub) Disconnect(ch interfaces.Channel) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.disconnectCh <- ch:
		return nil
	default:
		return ErrDisconnectChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer slog.Info("message hub stopped")

	for {
		select {
		case msg := <-h.messageCh:
			// Routing failures affect one dispatch only; the hub keeps
			// draining regardless.
			if err := h.router.HandleMessage(ctx, msg); err != nil {
				slog.Warn("message dispatch incomplete",
					"command", msg.Command, "from", msg.FromProfile, "error", err)
			}

		case req := <-h.connectCh:
			req.result <- h.router.OnConnect(ctx, req.participant)

		case ch := <-h.disconnectCh:
			h.router.OnDisconnect(ctx, ch)

		case <-h.shutdownCh:
			return

		case <-ctx.Done():
			return
		}
	}
}
