package events

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"github.com/mmynk/settleup/internal/models"
)

type fakeChannel struct {
	declared   []string
	kind       string
	durable    bool
	published  []amqp091.Publishing
	exchange   string
	routingKey string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	f.declared = append(f.declared, name)
	f.kind = kind
	f.durable = durable
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchange = exchange
	f.routingKey = key
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_PublishSettlementCommitted(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQPPublisher(ch, "settleup", "settlement.committed")
	if err != nil {
		t.Fatalf("newAMQPPublisher failed: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "settleup" || ch.kind != "topic" || !ch.durable {
		t.Fatalf("unexpected exchange declaration: %+v", ch)
	}

	msg := NewSettlementCommitted("g1", "u2", []*models.Settlement{
		{ID: "s1", BatchID: "b1", FromUserID: "u2", ToUserID: "u1", Amount: 4000},
		{ID: "s2", BatchID: "b1", FromUserID: "u3", ToUserID: "u1", Amount: 1234},
	})
	if err := p.PublishSettlementCommitted(context.Background(), msg); err != nil {
		t.Fatalf("PublishSettlementCommitted failed: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(ch.published))
	}
	pub := ch.published[0]
	if ch.exchange != "settleup" || ch.routingKey != "settlement.committed" {
		t.Errorf("published to %s/%s", ch.exchange, ch.routingKey)
	}
	if pub.DeliveryMode != amqp091.Persistent || pub.ContentType != "application/json" || pub.MessageId != "b1" {
		t.Errorf("unexpected publishing: %+v", pub)
	}

	decoded, err := SettlementCommittedFromJSON(pub.Body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.GroupID != "g1" || decoded.BatchID != "b1" || len(decoded.Transfers) != 2 {
		t.Fatalf("unexpected message: %+v", decoded)
	}
	if decoded.Transfers[1].AmountMinor != 1234 || decoded.Transfers[1].Amount != "12.34" {
		t.Errorf("unexpected transfer: %+v", decoded.Transfers[1])
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !ch.closed {
		t.Error("expected channel to be closed")
	}
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newAMQPPublisher(ch, "settleup", "settlement.committed")
	if err != nil {
		t.Fatalf("newAMQPPublisher failed: %v", err)
	}

	err = p.PublishSettlementCommitted(context.Background(), NewSettlementCommitted("g1", "u1", nil))
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}
}
