package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/factagent/internal/snapshot"
	"go.uber.org/zap"
)

// Subjects derives every subject used by one agent
type Subjects struct {
	Prefix string
	ID     string
}

// Snapshot is where heartbeat snapshots are published
func (s Subjects) Snapshot() string {
	return fmt.Sprintf("%s.%s.snapshot", s.Prefix, s.ID)
}

// Command is the request subject of a named command
func (s Subjects) Command(name string) string {
	return fmt.Sprintf("%s.%s.cmd.%s", s.Prefix, s.ID, name)
}

// Assembler builds snapshot envelopes on demand
type Assembler interface {
	Assemble(ctx context.Context) *snapshot.Envelope
}

// CommandHandlers answers request/reply commands for this agent
type CommandHandlers struct {
	logger    *zap.Logger
	subjects  Subjects
	assembler Assembler
	timeout   time.Duration
	version   string
}

// NewCommandHandlers creates the handler set. timeout bounds a requested snapshot.
func NewCommandHandlers(logger *zap.Logger, subjects Subjects, assembler Assembler, timeout time.Duration, version string) *CommandHandlers {
	return &CommandHandlers{
		logger:    logger,
		subjects:  subjects,
		assembler: assembler,
		timeout:   timeout,
		version:   version,
	}
}

// replyFunc computes the reply body for a request
type replyFunc func(data []byte) ([]byte, error)

type pingResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// SubscribeAll subscribes to every command subject
func (h *CommandHandlers) SubscribeAll(client *Client) error {
	commands := []struct {
		name string
		fn   replyFunc
	}{
		{"ping", h.ping},
		{"snapshot", h.snapshot},
	}
	for _, cmd := range commands {
		if _, err := client.Subscribe(h.subjects.Command(cmd.name), h.handleWithRecovery(cmd.name, cmd.fn)); err != nil {
			return err
		}
	}
	return nil
}

// handleWithRecovery adapts fn to a message handler that always replies
func (h *CommandHandlers) handleWithRecovery(name string, fn replyFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if err := msg.Respond(h.invoke(name, fn, msg.Data)); err != nil {
			h.logger.Warn("Failed to send reply",
				zap.String("handler", name),
				zap.String("subject", msg.Subject),
				zap.Error(err))
		}
	}
}

// invoke runs fn, turning an error or a panic into an error reply
func (h *CommandHandlers) invoke(name string, fn replyFunc, data []byte) (reply []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic recovered in command handler",
				zap.String("handler", name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			reply = errorReply(fmt.Sprintf("Internal error: handler panicked: %v", r))
		}
	}()

	h.logger.Debug("Received command", zap.String("handler", name))
	out, err := fn(data)
	if err != nil {
		h.logger.Error("Command failed", zap.String("handler", name), zap.Error(err))
		return errorReply(err.Error())
	}
	return out
}

func (h *CommandHandlers) ping(_ []byte) ([]byte, error) {
	return json.Marshal(pingResponse{
		Status:    "pong",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// snapshot replies with the envelope document itself
func (h *CommandHandlers) snapshot(_ []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.assembler.Assemble(ctx).Bytes()
}

func errorReply(msg string) []byte {
	data, _ := json.Marshal(errorResponse{
		Status:    "error",
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}
