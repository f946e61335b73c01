package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyUserRegistered は確認メール送信依頼イベントのルーティングキー。
const RoutingKeyUserRegistered = "user.registered"

// publishTimeout はブローカーが応答しない場合にリクエストを止めないための上限。
const publishTimeout = 3 * time.Second

// UserRegisteredEvent は外部のメール配信ワーカーが購読するイベント本文。
type UserRegisteredEvent struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name,omitempty"`
	ConfirmURL string    `json:"confirm_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// amqpChannel はAMQPPublisherが使用するチャネル操作。
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher は確認メールの送信をuser.registeredイベントとしてRabbitMQに発行する。
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	now      func() time.Time
}

// NewAMQPPublisher はブローカーに接続し、topic exchangeを宣言する。
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, now: time.Now}, nil
}

// SendConfirmation はイベントをJSONで発行する。
func (p *AMQPPublisher) SendConfirmation(ctx context.Context, c Confirmation) error {
	body, err := json.Marshal(UserRegisteredEvent{
		UserID:     c.UserID,
		Email:      c.Email,
		FirstName:  c.FirstName,
		ConfirmURL: c.URL,
		ExpiresAt:  p.now().Add(c.ExpiresIn).UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user registered event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyUserRegistered, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish user registered event: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ ConfirmationSender = (*AMQPPublisher)(nil)
