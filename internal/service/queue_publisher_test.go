package service

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-platform/internal/queue"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			go func() { _, _ = io.Copy(io.Discard, c) }()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	p := &AMQPPublisher{URL: silentBroker(t), DialTimeout: 200 * time.Millisecond}

	start := time.Now()
	err := p.PublishOrderPaid(context.Background(), queue.OrderPaidEvent{OrderID: 1})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	p := NewAMQPPublisher(silentBroker(t))
	assert.Equal(t, DefaultDialTimeout, p.DialTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := p.PublishOrderPaid(ctx, queue.OrderPaidEvent{OrderID: 1})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
