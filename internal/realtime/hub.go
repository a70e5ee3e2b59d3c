package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub bridges broker topics onto WebSocket connections. Each connection
// gets its own subscriber id; all its topic subscriptions are released when
// the connection drops, so a torn-down dashboard never leaks a channel.
type Hub struct {
	broker Broker

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func NewHub(broker Broker) *Hub {
	return &Hub{broker: broker, clients: map[string]*websocket.Conn{}}
}

// Stream pumps events from the given topics into conn until the peer goes
// away. Blocks; callers run it on the handler goroutine.
func (h *Hub) Stream(conn *websocket.Conn, topics ...string) {
	clientID := uuid.NewString()
	h.mu.Lock()
	h.clients[clientID] = conn
	h.mu.Unlock()

	chans := make([]chan Event, len(topics))
	for i, topic := range topics {
		chans[i] = h.broker.Subscribe(topic)
	}

	logrus.WithFields(logrus.Fields{
		"client_id": clientID,
		"topics":    topics,
	}).Info("Realtime client connected.")

	done := make(chan struct{})
	// Reader only detects close; clients do not send on event streams.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	merged := make(chan Event, 16)
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch chan Event) {
			defer wg.Done()
			for evt := range ch {
				select {
				case merged <- evt:
				default:
				}
			}
		}(ch)
	}

loop:
	for {
		select {
		case evt := <-merged:
			if err := conn.WriteJSON(evt); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logrus.WithError(err).WithField("client_id", clientID).Warn("Failed to push realtime event.")
				}
				break loop
			}
		case <-done:
			break loop
		}
	}

	for i, topic := range topics {
		h.broker.Unsubscribe(topic, chans[i])
	}
	wg.Wait()

	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()
	conn.Close()

	logrus.WithField("client_id", clientID).Info("Realtime client disconnected.")
}

// ClientCount reports connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
