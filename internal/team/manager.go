package team

import (
	"context"
	"fmt"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

// DefaultDeliveryInterval is how often queued messages are retried.
const DefaultDeliveryInterval = 30 * time.Second

// Message is a queued message waiting for its recipient to leave flow.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	TeamID    string
	Body      string
}

// Manager queues messages addressed to teammates in flow and delivers them
// once the recipient becomes interruptible.
type Manager struct {
	store     store.Store
	logger    *zap.Logger
	interval  time.Duration
	recipient string // deliver only messages for this user; all when empty

	// OnDeliver is called for every delivered message.
	OnDeliver func(Message)
}

// NewManager creates a manager over st.
func NewManager(st store.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		logger:   logger.Named("team"),
		interval: DefaultDeliveryInterval,
	}
}

// SetInterval overrides the delivery interval.
func (m *Manager) SetInterval(d time.Duration) {
	m.interval = d
}

// SetRecipient limits delivery to messages addressed to userID.
func (m *Manager) SetRecipient(userID string) {
	m.recipient = userID
}

// QueueMessage stores a pending message and returns its id.
func (m *Manager) QueueMessage(ctx context.Context, sender, recipient, teamID, body string) (string, error) {
	id, err := m.store.Add(ctx, store.CollectionPendingMessages, store.Doc{
		"sender":    sender,
		"recipient": recipient,
		"team_id":   teamID,
		"message":   body,
		"status":    "pending",
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to queue message: %w", err)
	}
	m.logger.Info("message queued",
		zap.String("sender", sender),
		zap.String("recipient", recipient))
	return id, nil
}

// Check looks at the active window and, when it is a chat with a teammate in
// flow, returns that teammate's id and true.
func (m *Manager) Check(ctx context.Context, app, title string) (string, bool, error) {
	if !IsChatApp(app, title) {
		return "", false, nil
	}
	name := ExtractRecipient(app, title)
	if name == "" {
		return "", false, nil
	}
	recipient := UserKey(name)
	st, ok, err := m.store.GetState(ctx, recipient)
	if err != nil {
		return recipient, false, fmt.Errorf("failed to read recipient state: %w", err)
	}
	if !ok {
		return recipient, false, nil
	}
	return recipient, ShouldInterrupt(st.State), nil
}

// DeliverPending marks every pending message whose recipient is STUCK or
// IDLE as delivered and returns the delivered messages.
func (m *Manager) DeliverPending(ctx context.Context) ([]Message, error) {
	filter := store.Doc{"status": "pending"}
	if m.recipient != "" {
		filter["recipient"] = m.recipient
	}
	docs, err := m.store.Query(ctx, store.CollectionPendingMessages, filter, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}

	var delivered []Message
	states := make(map[string]cognition.State)
	for _, d := range docs {
		recipient := d.Data.String("recipient")
		state, seen := states[recipient]
		if !seen {
			st, ok, err := m.store.GetState(ctx, recipient)
			if err != nil {
				return delivered, fmt.Errorf("failed to read recipient state: %w", err)
			}
			state = cognition.StateIdle
			if ok {
				state = st.State
			}
			states[recipient] = state
		}
		if !state.Interruptible() {
			continue
		}

		if err := m.store.Update(ctx, store.CollectionPendingMessages, d.ID, store.Doc{
			"status":       "delivered",
			"delivered_at": time.Now().UTC(),
		}); err != nil {
			return delivered, fmt.Errorf("failed to mark message delivered: %w", err)
		}
		msg := Message{
			ID:        d.ID,
			Sender:    d.Data.String("sender"),
			Recipient: recipient,
			TeamID:    d.Data.String("team_id"),
			Body:      d.Data.String("message"),
		}
		delivered = append(delivered, msg)
		m.logger.Info("message delivered",
			zap.String("sender", msg.Sender),
			zap.String("recipient", msg.Recipient))
		if m.OnDeliver != nil {
			m.OnDeliver(msg)
		}
	}
	return delivered, nil
}

// Run delivers pending messages every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.DeliverPending(ctx); err != nil {
				m.logger.Warn("delivery failed", zap.Error(err))
			}
		}
	}
}
