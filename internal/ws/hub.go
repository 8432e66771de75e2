package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 256
)

// jobEvent is implemented by events that belong to one ingest job.
type jobEvent interface {
	job() string
}

type envelope struct {
	jobID   string
	payload []byte
}

// Hub tracks subscribers and fans job events out to them. A subscriber either
// follows one job or, with an empty job ID, every job.
type Hub struct {
	register    chan *subscriber
	unregister  chan *subscriber
	events      chan envelope
	count       chan chan int
	done        chan struct{}
	subscribers map[*subscriber]struct{}
	logger      *zap.Logger
}

// NewHub creates a websocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		events:      make(chan envelope, sendBuffer),
		count:       make(chan chan int),
		done:        make(chan struct{}),
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger,
	}
}

// Run processes hub events until ctx is cancelled. Once it returns, every
// subscriber is disconnected and later calls on the hub no longer block.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}
			h.logger.Debug("ws subscriber joined", zap.String("job_id", sub.jobID))
		case sub := <-h.unregister:
			h.drop(sub)
		case ev := <-h.events:
			for sub := range h.subscribers {
				if !sub.follows(ev.jobID) {
					continue
				}
				select {
				case sub.send <- ev.payload:
				default:
					h.logger.Warn("ws subscriber too slow, disconnecting", zap.String("job_id", sub.jobID))
					h.drop(sub)
				}
			}
		case reply := <-h.count:
			reply <- len(h.subscribers)
		case <-ctx.Done():
			for sub := range h.subscribers {
				h.drop(sub)
			}
			return
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// Clients returns the number of connected subscribers, or zero once Run has
// returned.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	}
	return <-reply
}

// Broadcast serializes v to JSON and queues it for delivery. Job events reach
// the subscribers of that job and the subscribers of every job.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal websocket payload", zap.Error(err))
		return
	}
	ev := envelope{payload: data}
	if je, ok := v.(jobEvent); ok {
		ev.jobID = je.job()
	}
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("ws event buffer full, dropping message", zap.String("job_id", ev.jobID))
	}
}

// subscribe hands sub to Run. It reports false when the hub has stopped.
func (h *Hub) subscribe(sub *subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unsubscribe(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

type subscriber struct {
	hub   *Hub
	conn  *websocket.Conn
	jobID string
	send  chan []byte
}

func (s *subscriber) follows(jobID string) bool {
	return s.jobID == "" || jobID == "" || s.jobID == jobID
}

// readPump discards inbound frames and keeps the read deadline fresh so pongs
// are observed.
func (s *subscriber) readPump() {
	defer func() {
		s.hub.unsubscribe(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warn("ws subscriber closed unexpectedly", zap.String("job_id", s.jobID), zap.Error(err))
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub stopped"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
