package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coderoomhq/coderoom-backend/internal/doc"
	"github.com/coderoomhq/coderoom-backend/internal/exec"
	"github.com/coderoomhq/coderoom-backend/internal/metrics"
	"github.com/coderoomhq/coderoom-backend/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Join registers a connection as a member. Outbox receives encoded frames and
// is closed by the room when the member leaves or the room shuts down. Reply,
// when non-nil, receives true once the member is registered; it must be
// buffered. A join that is never acknowledged before Done closes did not
// happen — the room drained away first.
type Join struct {
	ID       string
	Username string
	Outbox   chan []byte
	Reply    chan bool
}

type Leave struct{ ID string }

// Frame is one decoded envelope from a member connection.
type Frame struct {
	From string
	Env  protocol.Envelope
}

type Shutdown struct{}

// GetState reflects internal state without data races. Test-only.
type GetState struct{ Reply chan View }

type execDone struct{ res protocol.ExecutionResult }

type drainExpired struct{ gen int }

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (Frame) isRoomMsg()        {}
func (Shutdown) isRoomMsg()     {}
func (GetState) isRoomMsg()     {}
func (execDone) isRoomMsg()     {}
func (drainExpired) isRoomMsg() {}

type View struct {
	Code     string
	Name     string
	Language string
	Text     string
	Revision uint64
	Users    []protocol.User
	TermLen  int
	Draining bool
}

// Snapshot is what survives a room: handed to the registry on destruction.
type Snapshot struct {
	Code       string
	Name       string
	Language   string
	Text       string
	Revision   uint64
	MemberPeak int
}

type Config struct {
	Grace      time.Duration
	TermLogMax int
	Language   string
}

type member struct {
	user   protocol.User
	outbox chan []byte
	ready  bool
}

// Room owns all state for one collaboration session. State is only touched
// from the loop goroutine; everything else talks to it through the inbox.
type Room struct {
	inbox chan Msg

	code       string
	name       string
	document   doc.Document
	language   string
	revision   uint64
	term       []protocol.ExecutionResult
	members    []*member
	memberPeak int

	drainGen   int
	drainTimer *time.Timer

	cfg       Config
	runner    exec.Runner
	onDestroy func(code string, snap Snapshot)
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, code string, cfg Config, runner exec.Runner, onDestroy func(string, Snapshot), log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Language == "" {
		cfg.Language = "plaintext"
	}
	r := &Room{
		inbox:     make(chan Msg, 64),
		code:      code,
		name:      code,
		document:  doc.New(""),
		language:  cfg.Language,
		cfg:       cfg,
		runner:    runner,
		onDestroy: onDestroy,
		log:       log.With(zap.String("room", code)),
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send delivers a message unless the room has already shut down. Callers the
// room may outlive (connections) use this instead of the raw inbox.
func (r *Room) Send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) Code() string { return r.code }

// Done closes once the room has shut down and will accept no more traffic.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg.ID)

			case Frame:
				r.dispatch(msg.From, msg.Env)

			case execDone:
				r.appendTerm(msg.res)
				r.broadcast(protocol.MustEncode(protocol.KindUpdateTerm, "", msg.res), "")

			case drainExpired:
				if msg.gen != r.drainGen || len(r.members) != 0 {
					break // stale fire: someone rejoined meanwhile
				}
				r.log.Info("room drained, destroying")
				if r.onDestroy != nil {
					go r.onDestroy(r.code, r.snapshot())
				}
				r.shutdown()
				return

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	// Any pending destruction is void now.
	r.drainGen++
	if r.drainTimer != nil {
		r.drainTimer.Stop()
		r.drainTimer = nil
	}

	m := &member{
		user:   protocol.User{ID: msg.ID, Username: msg.Username},
		outbox: msg.Outbox,
	}
	r.members = append(r.members, m)
	if len(r.members) > r.memberPeak {
		r.memberPeak = len(r.members)
	}
	if msg.Reply != nil {
		msg.Reply <- true
	}
	r.log.Info("member joined", zap.String("conn", msg.ID), zap.String("username", msg.Username), zap.Int("members", len(r.members)))

	r.broadcast(protocol.MustEncode(protocol.KindSyncUsers, "", r.roster()), "")
	r.send(m, protocol.MustEncode(protocol.KindSyncDoc, "", protocol.DocSnapshot{
		Name:     r.name,
		Text:     r.document.Text(),
		Language: r.language,
		Revision: r.revision,
	}))
	r.send(m, protocol.MustEncode(protocol.KindSyncLang, "", r.language))
	for _, entry := range r.term {
		r.send(m, protocol.MustEncode(protocol.KindUpdateTerm, "", entry))
	}
}

func (r *Room) handleLeave(id string) {
	m := r.remove(id)
	if m == nil {
		return
	}
	close(m.outbox)
	r.log.Info("member left", zap.String("conn", id), zap.Int("members", len(r.members)))

	r.broadcast(protocol.MustEncode(protocol.KindSyncUsers, "", r.roster()), "")
	r.broadcast(protocol.MustEncode(protocol.KindUserDisconnected, "", id), "")

	if len(r.members) == 0 {
		r.drainGen++
		gen := r.drainGen
		r.drainTimer = time.AfterFunc(r.cfg.Grace, func() {
			select {
			case r.inbox <- drainExpired{gen: gen}:
			case <-r.ctx.Done():
			}
		})
	}
}

func (r *Room) dispatch(from string, env protocol.Envelope) {
	sender := r.byID(from)
	if sender == nil {
		return
	}
	metrics.MessagesTotal.WithLabelValues(string(env.Kind)).Inc()

	payload, err := env.DecodePayload()
	if err != nil {
		metrics.MalformedTotal.Inc()
		r.log.Debug("dropping malformed frame", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}

	switch env.Kind {
	case protocol.KindUpdateCode:
		r.applyCode(sender, payload.(protocol.CodeUpdate))

	case protocol.KindUpdateLang, protocol.KindSyncLang:
		r.language = payload.(string)
		r.relay(env, from)

	case protocol.KindUpdateDoc:
		r.name = payload.(protocol.DocMeta).Name
		r.relay(env, from)

	case protocol.KindUpdateCursor, protocol.KindUpdateScroll, protocol.KindPointer, protocol.KindStream:
		// Transient UI signals: no state, at-most-once, sender excluded.
		r.relay(env, from)

	case protocol.KindExec:
		r.launchExec(payload.(protocol.ExecPayload))

	case protocol.KindUserReady:
		r.handleUserReady(sender)

	case protocol.KindSignal:
		sig := payload.(protocol.SignalPayload)
		if target := r.byID(sig.To); target != nil {
			r.send(target, protocol.MustEncode(protocol.KindSignal, from, env.Payload))
		} else {
			r.log.Debug("signal to unknown peer", zap.String("to", sig.To))
		}

	case protocol.KindCameraOff:
		sender.user.CameraOff = payload.(bool)
		r.relay(env, from)

	case protocol.KindMicState:
		sender.user.MicMuted = payload.(bool)
		r.relay(env, from)

	case protocol.KindSpeakerState:
		sender.user.SpeakerMuted = payload.(bool)
		r.relay(env, from)

	default:
		// Server-originated kinds (SYNC_*, NOT_FOUND, UPDATE_TERM, ...) are
		// not accepted from clients.
		r.log.Debug("dropping client frame of server-only kind", zap.String("kind", string(env.Kind)))
	}
}

// applyCode validates and applies edit ops in arrival order. This loop is the
// single source of truth for op ordering in the room.
func (r *Room) applyCode(sender *member, upd protocol.CodeUpdate) {
	next, err := doc.ApplyAll(r.document, upd.Ops)
	if err != nil {
		// Stale coordinates: drop the batch and resync just the sender.
		r.log.Debug("edit out of bounds, resyncing sender", zap.String("conn", sender.user.ID), zap.Error(err))
		r.send(sender, protocol.MustEncode(protocol.KindSyncCode, "", protocol.CodeSnapshot{
			Text:     r.document.Text(),
			Revision: r.revision,
		}))
		return
	}
	r.document = next
	r.revision++
	r.broadcast(protocol.MustEncode(protocol.KindUpdateCode, sender.user.ID, protocol.CodeUpdate{
		Ops:      upd.Ops,
		Revision: r.revision,
	}), sender.user.ID)
}

// launchExec snapshots the inputs and runs the relay call off-loop so a slow
// runner never stalls edits or cursor traffic.
func (r *Room) launchExec(req protocol.ExecPayload) {
	running := protocol.ExecutionResult{
		Language:  r.language,
		Run:       protocol.RunDetail{Output: "Running " + r.language + "..."},
		Timestamp: time.Now().UnixMilli(),
		Type:      protocol.ResultInfo,
	}
	r.appendTerm(running)
	r.broadcast(protocol.MustEncode(protocol.KindUpdateTerm, "", running), "")

	call := exec.Request{
		Language: r.language,
		Source:   r.document.Text(),
		Stdin:    req.Stdin,
	}
	go func() {
		res := r.runner.Execute(r.ctx, call)
		select {
		case r.inbox <- execDone{res: res}:
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) handleUserReady(sender *member) {
	sender.ready = true
	for _, m := range r.members {
		if m == sender || !m.ready {
			continue
		}
		// Each side learns the other is ready to exchange SIGNAL frames.
		r.send(m, protocol.MustEncode(protocol.KindStreamReady, sender.user.ID, sender.user.ID))
		r.send(sender, protocol.MustEncode(protocol.KindStreamReady, m.user.ID, m.user.ID))
	}
}

// relay re-encodes the envelope with the sender stamped and fans it out to
// everyone else.
func (r *Room) relay(env protocol.Envelope, from string) {
	r.broadcast(protocol.MustEncode(env.Kind, from, env.Payload), from)
}

func (r *Room) appendTerm(res protocol.ExecutionResult) {
	r.term = append(r.term, res)
	if max := r.cfg.TermLogMax; max > 0 && len(r.term) > max {
		r.term = append(r.term[:0:0], r.term[len(r.term)-max:]...)
	}
}

// broadcast delivers to every member except exceptID ("" means everyone).
// Delivery is fire-and-forget: a member with a full outbox just misses the
// frame rather than blocking the room.
func (r *Room) broadcast(data []byte, exceptID string) {
	for _, m := range r.members {
		if m.user.ID == exceptID {
			continue
		}
		r.send(m, data)
	}
}

func (r *Room) send(m *member, data []byte) {
	select {
	case m.outbox <- data:
	default:
		r.log.Warn("dropping frame for slow member", zap.String("conn", m.user.ID))
	}
}

func (r *Room) roster() []protocol.User {
	users := make([]protocol.User, len(r.members))
	for i, m := range r.members {
		users[i] = m.user
	}
	return users
}

func (r *Room) byID(id string) *member {
	for _, m := range r.members {
		if m.user.ID == id {
			return m
		}
	}
	return nil
}

func (r *Room) remove(id string) *member {
	for i, m := range r.members {
		if m.user.ID == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m
		}
	}
	return nil
}

func (r *Room) view() View {
	return View{
		Code:     r.code,
		Name:     r.name,
		Language: r.language,
		Text:     r.document.Text(),
		Revision: r.revision,
		Users:    r.roster(),
		TermLen:  len(r.term),
		Draining: len(r.members) == 0 && r.drainTimer != nil,
	}
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Code:       r.code,
		Name:       r.name,
		Language:   r.language,
		Text:       r.document.Text(),
		Revision:   r.revision,
		MemberPeak: r.memberPeak,
	}
}

func (r *Room) shutdown() {
	if r.drainTimer != nil {
		r.drainTimer.Stop()
	}
	for _, m := range r.members {
		close(m.outbox)
	}
	r.members = nil
	r.cancel()
}
