// Package rabbitmq は予約のライフサイクル通知を RabbitMQ に送信する
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/go-event-capacity-booking/internal/config"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrPublisherClosed = errors.New("パブリッシャーは既に閉じられています")

// channel は amqp.Channel のうち送信に使う部分
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher は既定の exchange 経由で永続キューへ通知を送る
// チャネルはスレッドセーフではないため送信はミューテックスで直列化する
type Publisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	closed bool
}

// NewPublisher はブローカーに接続し、キューを宣言する
func NewPublisher(cfg *config.RabbitMQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("チャネルの作成に失敗: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("キューの宣言に失敗: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

func newPublisherWithChannel(ch channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

// Publish は通知を JSON で送信する。メッセージは永続化指定
func (p *Publisher) Publish(ctx context.Context, evt reservation.LifecycleEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("通知のシリアライズに失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ReservationID,
		Type:         string(evt.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("通知の送信に失敗: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。複数回呼んでもよい
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
