package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coderoomhq/coderoom-backend/internal/hub"
	"github.com/coderoomhq/coderoom-backend/internal/metrics"
	"github.com/coderoomhq/coderoom-backend/internal/protocol"
	"github.com/coderoomhq/coderoom-backend/internal/room"
)

// Handler accepts a websocket, identifies the connection, and shuttles frames
// between it and the room it binds to. A connection binds to at most one room
// for its lifetime.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			return
		}
		defer sock.Close(websocket.StatusNormalClosure, "bye")

		metrics.OpenConnections.Inc()
		defer metrics.OpenConnections.Dec()

		connID := uuid.NewString()
		clog := log.With(zap.String("conn", connID))
		c := newConn(sock)
		go c.writeLoop(r.Context())

		var rm *room.Room
		for rm == nil {
			var username string
			rm, username = bindRoom(r, h, c, clog)
			if rm == nil {
				return
			}
			if !joinRoom(rm, connID, username, c) {
				// The room drained away between lookup and join; from the
				// client's side that is the same as a bad code.
				c.send(protocol.MustEncode(protocol.KindNotFound, "", nil))
				rm = nil
			}
		}
		defer rm.Send(room.Leave{ID: connID})

		for {
			data, ok := c.read(r.Context())
			if !ok {
				return // clean close and failure both end in Leave
			}
			env, err := protocol.Decode(data)
			if err != nil {
				metrics.MalformedTotal.Inc()
				clog.Debug("dropping undecodable frame", zap.Error(err))
				continue
			}
			switch env.Kind {
			case protocol.KindLeave:
				return // Leave in defer
			case protocol.KindCreate, protocol.KindJoin:
				clog.Debug("dropping create/join on bound connection")
			default:
				if !rm.Send(room.Frame{From: connID, Env: env}) {
					return
				}
			}
		}
	}
}

// joinRoom registers the connection and waits for the room loop to
// acknowledge the membership, so a join racing the room's destruction is
// refused rather than swallowed.
func joinRoom(rm *room.Room, connID, username string, c *Conn) bool {
	joined := make(chan bool, 1)
	if !rm.Send(room.Join{ID: connID, Username: username, Outbox: c.out, Reply: joined}) {
		return false
	}
	select {
	case <-joined:
		return true
	case <-rm.Done():
		// The ack may have landed just before shutdown; membership then went
		// through and the closed outbox will end the connection normally.
		select {
		case <-joined:
			return true
		default:
			return false
		}
	}
}

// bindRoom reads frames until the client sends a valid CREATE or JOIN, then
// answers with the room id (create) or NOT_FOUND retries (join). Returns nil
// when the socket closes first.
func bindRoom(r *http.Request, h *hub.Hub, c *Conn, log *zap.Logger) (*room.Room, string) {
	fallback := r.URL.Query().Get("username")

	for {
		data, ok := c.read(r.Context())
		if !ok {
			return nil, ""
		}
		env, err := protocol.Decode(data)
		if err != nil {
			metrics.MalformedTotal.Inc()
			log.Debug("dropping undecodable frame", zap.Error(err))
			continue
		}

		switch env.Kind {
		case protocol.KindCreate:
			payload, err := env.DecodePayload()
			if err != nil {
				metrics.MalformedTotal.Inc()
				continue
			}
			username := displayName(payload.(protocol.CreatePayload).Username, fallback)

			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.CreateRoom{Reply: reply}
			rm := <-reply
			c.send(protocol.MustEncode(protocol.KindCreate, "", protocol.CreatePayload{RoomID: rm.Code()}))
			return rm, username

		case protocol.KindJoin:
			payload, err := env.DecodePayload()
			if err != nil {
				metrics.MalformedTotal.Inc()
				continue
			}
			join := payload.(protocol.JoinPayload)

			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.GetRoom{Code: join.RoomID, Reply: reply}
			rm := <-reply
			if rm == nil {
				// No such room: tell only the requester, mutate nothing, and
				// let them try another code on the same connection.
				c.send(protocol.MustEncode(protocol.KindNotFound, "", nil))
				continue
			}
			return rm, displayName(join.Username, fallback)

		default:
			log.Debug("dropping frame before room bind", zap.String("kind", string(env.Kind)))
		}
	}
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return "anonymous"
}
