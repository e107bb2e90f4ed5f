package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The edge tier owns origin policy; the coordinator accepts all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriberSession is one live socket and the job it joined. Sessions
// are purely in-memory; they do not survive a coordinator restart and
// do not need to.
type subscriberSession struct {
	id    string
	jobID string
	conn  *websocket.Conn
	wmu   sync.Mutex // gorilla allows one concurrent writer
}

func (s *subscriberSession) send(v interface{}) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(v)
}

// defaultWSReadTimeout bounds how long a session may go without
// sending any frame. Clients own the ping heartbeat, so a healthy
// idle subscriber refreshes the deadline well within this window.
const defaultWSReadTimeout = 90 * time.Second

// Hub is the live-subscriber registry: session id → session, plus
// fan-out of job events to every session joined to that job.
type Hub struct {
	mu          sync.Mutex
	sessions    map[string]*subscriberSession
	readTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[string]*subscriberSession),
		readTimeout: defaultWSReadTimeout,
	}
}

func (h *Hub) register(s *subscriberSession) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

// join records the session→job association. Guarded by the hub mutex
// because Broadcast reads jobID from another goroutine.
func (h *Hub) join(sessionID, jobID string) {
	h.mu.Lock()
	if s, ok := h.sessions[sessionID]; ok {
		s.jobID = jobID
	}
	h.mu.Unlock()
}

// Broadcast sends rec to every session joined to rec.JobID. The event
// type is derived from the record's status. A failed send is logged
// and that session dropped; it never blocks delivery to the rest.
func (h *Hub) Broadcast(rec *JobRecord) {
	h.mu.Lock()
	targets := make([]*subscriberSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.jobID == rec.JobID {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("⚠️  broadcast marshal for job %s: %v", rec.JobID, err)
		return
	}
	event := wsEnvelope{Type: eventTypeFor(rec.Status), Payload: payload}

	for _, s := range targets {
		if err := s.send(event); err != nil {
			log.Printf("⚠️  send to session %s failed, dropping: %v", s.id, err)
			h.unregister(s.id)
			s.conn.Close()
		}
	}
}

// handleWS upgrades the connection and runs the session read loop.
// Malformed frames are logged and ignored; only a read error ends the
// session.
func (h *Hub) handleWS(store JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("⚠️  websocket upgrade: %v", err)
			return
		}

		sess := &subscriberSession{id: uuid.New().String(), conn: conn}
		h.register(sess)
		defer func() {
			h.unregister(sess.id)
			conn.Close()
		}()

		for {
			// Refreshed on every inbound frame; a silently dead
			// client is reaped when the deadline passes.
			conn.SetReadDeadline(time.Now().Add(h.readTimeout))
			var env wsEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Type {
			case "join:job":
				var join wsJoinPayload
				if err := json.Unmarshal(env.Payload, &join); err != nil || join.JobID == "" {
					log.Printf("⚠️  malformed join from session %s, ignoring", sess.id)
					continue
				}
				h.join(sess.id, join.JobID)

				// Snapshot first so a subscriber joining mid-job sees
				// the current state before any live event.
				if rec, err := store.Get(r.Context(), join.JobID); err == nil {
					if data, err := json.Marshal(rec); err == nil {
						sess.send(wsEnvelope{Type: "job:status", Payload: data})
					}
				}
				ack, _ := json.Marshal(wsJoinPayload{JobID: join.JobID})
				sess.send(wsEnvelope{Type: "joined", Payload: ack})
			case "ping":
				sess.send(wsEnvelope{Type: "pong"})
			default:
				log.Printf("⚠️  unknown message type %q from session %s, ignoring", env.Type, sess.id)
			}
		}
	}
}
