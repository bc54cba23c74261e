package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lending-gateway/internal/metrics"
	"lending-gateway/internal/models"
)

// OperationEvent is published whenever a journaled operation changes status.
type OperationEvent struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Method    string    `json:"method"`
	Network   string    `json:"network"`
	Status    string    `json:"status"`
	Final     bool      `json:"final"` // no further events follow for this id
	Requester string    `json:"requester"`
	Sender    string    `json:"sender,omitempty"`
	ShardsKey string    `json:"shards_key,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOperationEvent snapshots op
func NewOperationEvent(op *models.LendingOperation) OperationEvent {
	return OperationEvent{
		ID:        op.ID,
		Operation: op.Operation,
		Method:    op.Method,
		Network:   op.Network,
		Status:    string(op.Status),
		Final:     op.IsTerminal(),
		Requester: op.Requester,
		Sender:    op.Sender,
		ShardsKey: op.ShardsKey,
		Error:     op.LastError,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher fans operation events out to other services
type Publisher interface {
	PublishOperation(ev OperationEvent) error
}

// JSONPublisher is implemented by clients.NATSClient
type JSONPublisher interface {
	PublishJSON(subject string, v interface{}) error
}

// NATSPublisher publishes on <prefix>.<network>.<operation>.<status>
type NATSPublisher struct {
	client JSONPublisher
	prefix string
	log    *logrus.Entry
}

// NewNATSPublisher creates a publisher; prefix defaults to "lending".
func NewNATSPublisher(client JSONPublisher, prefix string, logger *logrus.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "lending"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NATSPublisher{client: client, prefix: prefix, log: logger.WithField("component", "events")}
}

// Subject builds the subject for an event
func (p *NATSPublisher) Subject(ev OperationEvent) string {
	return fmt.Sprintf("%s.%s.%s.%s", p.prefix, token(ev.Network), token(ev.Operation), token(ev.Status))
}

// StreamSubjects the wildcard a JetStream stream needs to capture every event
func StreamSubjects(prefix string) []string {
	if prefix == "" {
		prefix = "lending"
	}
	return []string{prefix + ".>"}
}

func (p *NATSPublisher) PublishOperation(ev OperationEvent) error {
	subject := p.Subject(ev)
	if err := p.client.PublishJSON(subject, ev); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(ev.Status).Inc()
		return err
	}
	metrics.NATSMessagesPublished.WithLabelValues(ev.Status).Inc()
	p.log.WithFields(logrus.Fields{"subject": subject, "id": ev.ID}).Debug("📨 operation event published")
	return nil
}

// NoopPublisher drops events; used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOperation(OperationEvent) error { return nil }

// NATS subject tokens may not contain separators or wildcards.
func token(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
