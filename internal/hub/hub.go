package hub

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coderoomhq/coderoom-backend/internal/exec"
	"github.com/coderoomhq/coderoom-backend/internal/metrics"
	"github.com/coderoomhq/coderoom-backend/internal/room"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen     = 8
)

type HubMsg interface{ isHubMsg() }

// CreateRoom allocates a fresh room under an unused code.
type CreateRoom struct {
	Reply chan *room.Room
}

// GetRoom looks up a room by (normalized) code. Reply receives nil when no
// live room exists under it.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom deregisters a destroyed room and persists its final snapshot.
type RemoveRoom struct {
	Code     string
	Snapshot room.Snapshot
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Saver persists final room snapshots. Optional.
type Saver interface {
	Save(ctx context.Context, snap room.Snapshot) error
}

// Hub is the process-wide room registry. All map access happens on the loop
// goroutine, so create/lookup/remove are serialized and a join can never race
// a destroy.
type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	roomCfg room.Config
	runner  exec.Runner
	saver   Saver
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, roomCfg room.Config, runner exec.Runner, saver Saver, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		roomCfg: roomCfg,
		runner:  runner,
		saver:   saver,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				code := h.unusedCode()
				rm := room.New(h.ctx, code, h.roomCfg, h.runner, h.notifyDestroyed, h.log)
				h.rooms[code] = rm
				metrics.ActiveRooms.Inc()
				h.log.Info("room created", zap.String("room", code))
				msg.Reply <- rm

			case GetRoom:
				code, ok := Normalize(msg.Code)
				if !ok {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.rooms[code] // may be nil

			case RemoveRoom:
				if _, live := h.rooms[msg.Code]; !live {
					break
				}
				delete(h.rooms, msg.Code)
				metrics.ActiveRooms.Dec()
				h.log.Info("room removed", zap.String("room", msg.Code))
				h.persist(msg.Snapshot)

			case ShutdownHub:
				// Rooms are children of the hub context, so cancelling
				// reaches every loop without touching any inbox; a room
				// wedged behind a full inbox cannot stall shutdown.
				h.cancel()
				clear(h.rooms)
				metrics.ActiveRooms.Set(0)
				return
			}
		}
	}
}

// notifyDestroyed is handed to every room; it runs on the room's goroutine,
// never the hub loop.
func (h *Hub) notifyDestroyed(code string, snap room.Snapshot) {
	select {
	case h.inbox <- RemoveRoom{Code: code, Snapshot: snap}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) persist(snap room.Snapshot) {
	if h.saver == nil {
		return
	}
	// Best effort, off-loop: a slow database must not stall registry traffic.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.saver.Save(ctx, snap); err != nil {
			h.log.Warn("room snapshot save failed", zap.String("room", snap.Code), zap.Error(err))
		}
	}()
}

// unusedCode regenerates on collision. The space is 36^8, so collisions are
// freak occurrences, but a live room must never be silently overwritten.
func (h *Hub) unusedCode() string {
	for {
		code := generateCode()
		if _, taken := h.rooms[code]; !taken {
			return code
		}
		h.log.Warn("room code collision, regenerating", zap.String("room", code))
	}
}

func generateCode() string {
	code := make([]byte, codeLen)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			// crypto/rand failing means the platform is broken.
			panic(err)
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code)
}

// Normalize uppercases a user-supplied room code and strips hyphens and
// spaces (people paste codes as XXXX-XXXX). Returns false when the result is
// not a well-formed code.
func Normalize(code string) (string, bool) {
	var b strings.Builder
	for _, c := range strings.ToUpper(strings.TrimSpace(code)) {
		if c == '-' || c == ' ' {
			continue
		}
		if !strings.ContainsRune(codeCharset, c) {
			return "", false
		}
		b.WriteRune(c)
	}
	if b.Len() != codeLen {
		return "", false
	}
	return b.String(), true
}
