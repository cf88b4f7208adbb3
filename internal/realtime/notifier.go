package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

// Publisher fans a message out across instances. The Redis bus implements it.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// Notifier sends user-scoped notifications. With a Publisher every instance's forwarder
// delivers the message to its own hub; without one the local hub is used directly.
type Notifier struct {
	hub *SSEHub
	pub Publisher
	log *logger.Logger
}

func NewNotifier(log *logger.Logger, hub *SSEHub, pub Publisher) *Notifier {
	return &Notifier{hub: hub, pub: pub, log: log.With("component", "Notifier")}
}

func (n *Notifier) NotifyUser(ctx context.Context, userID uuid.UUID, event SSEEvent, data any) {
	if n == nil || userID == uuid.Nil {
		return
	}
	msg := SSEMessage{Channel: UserChannel(userID), Event: event, Data: data}
	if n.pub != nil {
		err := n.pub.Publish(ctx, msg)
		if err == nil {
			return
		}
		n.log.Warn("publish failed; delivering locally", "event", event, "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}
