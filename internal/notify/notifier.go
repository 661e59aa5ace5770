package notify

import (
	"context"
	"time"
)

// Notification is the payload handed to downstream delivery channels when an
// alert fires. Delivery mechanics (email, webhook, chat) live behind the bus;
// this service only decides whether and when to publish.
type Notification struct {
	AlertID    string    `json:"alert_id"`
	AlertName  string    `json:"alert_name"`
	QueryID    string    `json:"query_id"`
	QueryName  string    `json:"query_name"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	ObservedAt time.Time `json:"observed_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type publisher interface {
	Publish(subject string, payload any) error
}

// BusNotifier publishes notifications on a NATS subject per resulting state,
// e.g. "alerts.notifications.triggered".
type BusNotifier struct {
	Bus           publisher
	SubjectPrefix string
}

func NewBusNotifier(bus publisher) *BusNotifier {
	return &BusNotifier{Bus: bus, SubjectPrefix: "alerts.notifications"}
}

func (n *BusNotifier) Notify(_ context.Context, notification Notification) error {
	return n.Bus.Publish(n.SubjectPrefix+"."+notification.State, notification)
}
