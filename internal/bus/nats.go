package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Subjects published by the API service and consumed by the scheduler worker.
const (
	SubjectQueryCreated  = "query.created"
	SubjectQueryUpdated  = "query.updated"
	SubjectQueryArchived = "query.archived"
	SubjectAlertCreated  = "alert.created"
	SubjectAlertUpdated  = "alert.updated"
)

type QueryEvent struct {
	QueryID string `json:"query_id"`
}

type AlertEvent struct {
	AlertID string `json:"alert_id"`
	QueryID string `json:"query_id"`
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

func (s *Subscriber) SubscribeQueryEvents(subject string, handler func(QueryEvent)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt QueryEvent
		_ = json.Unmarshal(msg.Data, &evt)
		handler(evt)
	})
}

func (s *Subscriber) SubscribeAlertEvents(subject string, handler func(AlertEvent)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt AlertEvent
		_ = json.Unmarshal(msg.Data, &evt)
		handler(evt)
	})
}
