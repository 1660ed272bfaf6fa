// Package service holds the business operations that span several
// repositories and external systems: checkout and the order lifecycle,
// webhook processing, check-in, analytics and organizer plans.
package service

import (
    "context"
    "encoding/json"
    "log"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/ticketing-platform/internal/queue"
)

// Publisher delivers domain events to the broker.  Failures are reported
// to the caller, which logs them and carries on.
type Publisher interface {
    PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error
}

// DefaultDialTimeout bounds the TCP connect and AMQP handshake of a publish.
const DefaultDialTimeout = 3 * time.Second

// AMQPPublisher publishes to RabbitMQ, opening a short-lived connection per
// message.  Paid orders are rare enough that pooling is not worth it.
type AMQPPublisher struct {
    URL         string
    DialTimeout time.Duration
}

// NewAMQPPublisher returns a publisher for url.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{URL: url, DialTimeout: DefaultDialTimeout}
}

// dial connects within DialTimeout and stops early when ctx ends.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, error) {
    timeout := p.DialTimeout
    if timeout <= 0 {
        timeout = DefaultDialTimeout
    }
    return amqp.DialConfig(p.URL, amqp.Config{
        Locale: "en_US",
        Dial: func(network, addr string) (net.Conn, error) {
            d := net.Dialer{Timeout: timeout}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            // cleared by the client once the handshake completes
            if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
                _ = conn.Close()
                return nil, err
            }
            return conn, nil
        },
    })
}

// PublishOrderPaid sends ev to the durable order.paid queue as a
// persistent message.
func (p *AMQPPublisher) PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error {
    conn, err := p.dial(ctx)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(queue.OrderPaidQueue, true, false, false, false, nil); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        MessageId:    "order-paid-" + formatID(ev.OrderID),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue.OrderPaidQueue, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}
