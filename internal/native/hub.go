package native

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/monitoring"
)

var (
	// ErrNoShell is returned when a prompt needs a user but no host shell is
	// connected.
	ErrNoShell = errors.New("no host shell connected")
	// ErrShellDisconnected fails prompts whose shell went away.
	ErrShellDisconnected = errors.New("host shell disconnected")
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The shell runs on the same machine in development.
	},
}

// Prompt is sent to the shell to show native UI.
type Prompt struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	SessionID   string `json:"sessionId"`
	AppID       string `json:"appId"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	ButtonText  string `json:"buttonText,omitempty"`
	CancelText  string `json:"cancelText,omitempty"`
	ConfirmText string `json:"confirmText,omitempty"`
}

// Answer is the shell's reply to a prompt.
type Answer struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Data    string `json:"data,omitempty"`
}

// Prompt kinds and answer outcomes.
const (
	KindAlert   = "alert"
	KindConfirm = "confirm"
	KindQR      = "qr"

	OutcomeDismissed = "dismissed"
	OutcomeConfirm   = "confirm"
	OutcomeCancel    = "cancel"
	OutcomeScanned   = "scanned"
)

type inbound struct {
	Type string `json:"type"`
	Answer
}

type shell struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *shell) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

type pending struct {
	shell  *shell
	answer chan Answer
	failed chan error
}

// Hub connects host shells over WebSocket and routes prompts to the most
// recently connected one.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	shells  []*shell
	pending map[string]*pending
}

// NewHub creates a hub with no shells.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger.Named("shell"),
		metrics: metrics,
		pending: make(map[string]*pending),
	}
}

// HandleConnection upgrades a shell connection and serves it until it
// closes.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &shell{id: uuid.NewString(), conn: conn}
	h.attach(s)
	defer h.detach(s)

	s.send(map[string]any{"type": "system", "message": "connected", "shellId": s.id})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("shell read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "answer":
			h.resolve(msg.Answer)
		case "ping":
			s.send(map[string]any{"type": "pong"})
		default:
			s.send(map[string]any{"type": "error", "message": "unknown message type"})
		}
	}
}

// Connected returns the number of connected shells.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.shells)
}

// Ask sends p to the newest shell and waits for its answer.
func (h *Hub) Ask(ctx context.Context, p Prompt) (Answer, error) {
	p.Type = "prompt"
	p.ID = uuid.NewString()

	h.mu.Lock()
	if len(h.shells) == 0 {
		h.mu.Unlock()
		return Answer{}, ErrNoShell
	}
	target := h.shells[len(h.shells)-1]
	wait := &pending{shell: target, answer: make(chan Answer, 1), failed: make(chan error, 1)}
	h.pending[p.ID] = wait
	h.mu.Unlock()

	if err := target.send(p); err != nil {
		h.forget(p.ID)
		return Answer{}, fmt.Errorf("send prompt: %w", err)
	}

	select {
	case answer := <-wait.answer:
		return answer, nil
	case err := <-wait.failed:
		return Answer{}, err
	case <-ctx.Done():
		h.forget(p.ID)
		target.send(map[string]any{"type": "dismiss", "id": p.ID})
		return Answer{}, ctx.Err()
	}
}

func (h *Hub) attach(s *shell) {
	h.mu.Lock()
	h.shells = append(h.shells, s)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncShellConnections()
	}
	h.logger.Info("shell connected", zap.String("shell_id", s.id))
}

func (h *Hub) detach(s *shell) {
	h.mu.Lock()
	for i, other := range h.shells {
		if other == s {
			h.shells = append(h.shells[:i], h.shells[i+1:]...)
			break
		}
	}
	var orphaned []*pending
	for id, p := range h.pending {
		if p.shell == s {
			orphaned = append(orphaned, p)
			delete(h.pending, id)
		}
	}
	h.mu.Unlock()

	for _, p := range orphaned {
		p.failed <- ErrShellDisconnected
	}
	s.conn.Close()
	if h.metrics != nil {
		h.metrics.DecShellConnections()
	}
	h.logger.Info("shell disconnected", zap.String("shell_id", s.id), zap.Int("failed_prompts", len(orphaned)))
}

func (h *Hub) resolve(answer Answer) {
	h.mu.Lock()
	p, ok := h.pending[answer.ID]
	delete(h.pending, answer.ID)
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("answer for unknown prompt", zap.String("id", answer.ID))
		return
	}
	p.answer <- answer
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}
