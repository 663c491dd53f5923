package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedMessage = errors.New("malformed message")

// Kind is the single-character wire tag of a message.
type Kind string

// Room family
const (
	KindCreate    Kind = "c"
	KindJoin      Kind = "j"
	KindLeave     Kind = "l"
	KindNotFound  Kind = "n"
	KindSyncUsers Kind = "u"
	KindSyncDoc   Kind = "d"
	KindUpdateDoc Kind = "D"
)

// Code family
const (
	KindSyncCode     Kind = "s"
	KindUpdateCode   Kind = "e"
	KindUpdateCursor Kind = "k"
	KindSyncLang     Kind = "g"
	KindUpdateLang   Kind = "G"
	KindExec         Kind = "x"
	KindUpdateTerm   Kind = "t"
)

// Scroll family
const (
	KindUpdateScroll Kind = "o"
)

// Stream family
const (
	KindUserReady        Kind = "r"
	KindStreamReady      Kind = "R"
	KindSignal           Kind = "i"
	KindStream           Kind = "S"
	KindUserDisconnected Kind = "q"
	KindCameraOff        Kind = "v"
	KindMicState         Kind = "a"
	KindSpeakerState     Kind = "A"
)

// Pointer family
const (
	KindPointer Kind = "p"
)

var knownKinds = map[Kind]bool{
	KindCreate: true, KindJoin: true, KindLeave: true, KindNotFound: true,
	KindSyncUsers: true, KindSyncDoc: true, KindUpdateDoc: true,
	KindSyncCode: true, KindUpdateCode: true, KindUpdateCursor: true,
	KindSyncLang: true, KindUpdateLang: true, KindExec: true, KindUpdateTerm: true,
	KindUpdateScroll: true,
	KindUserReady:    true, KindStreamReady: true, KindSignal: true, KindStream: true,
	KindUserDisconnected: true, KindCameraOff: true, KindMicState: true, KindSpeakerState: true,
	KindPointer: true,
}

// Envelope is the outer wire frame. From is set by the server on rebroadcast
// and carries the sender's connection id.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User is one roster entry of a SYNC_USERS frame.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	CameraOff    bool   `json:"cameraOff"`
	MicMuted     bool   `json:"micMuted"`
	SpeakerMuted bool   `json:"speakerMuted"`
}

// CreatePayload carries the username on the way in and the allocated room id
// on the way back.
type CreatePayload struct {
	Username string `json:"username,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
}

type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// DocSnapshot is the SYNC_DOC payload: everything a joining client needs.
type DocSnapshot struct {
	Name     string `json:"name"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Revision uint64 `json:"revision"`
}

// DocMeta is the UPDATE_DOC payload (rename only).
type DocMeta struct {
	Name string `json:"name"`
}

type CodeSnapshot struct {
	Text     string `json:"text"`
	Revision uint64 `json:"revision"`
}

// CodeUpdate carries one or more edit ops. Revision is the document revision
// after applying them; it is absent on the client->server leg and stamped by
// the server on rebroadcast.
type CodeUpdate struct {
	Ops      []EditOp `json:"ops"`
	Revision uint64   `json:"revision,omitempty"`
}

type ExecPayload struct {
	Stdin string `json:"stdin,omitempty"`
}

// SignalPayload addresses an opaque WebRTC blob to one peer. Data is never
// inspected by the server.
type SignalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// ResultType classifies how a terminal entry should be rendered.
type ResultType string

const (
	ResultInfo    ResultType = "info"
	ResultWarning ResultType = "warning"
	ResultError   ResultType = "error"
	ResultOutput  ResultType = "output"
)

// RunDetail mirrors the runner's per-run report. Code is the program's own
// exit code; infrastructure failures never reach it (see ExecutionResult.Type).
type RunDetail struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
	Output string `json:"output"`
}

type ExecutionResult struct {
	Language      string     `json:"language"`
	Version       string     `json:"version"`
	Run           RunDetail  `json:"run"`
	Timestamp     int64      `json:"timestamp,omitempty"`
	ExecutionTime int64      `json:"executionTime,omitempty"`
	Type          ResultType `json:"type"`
}

// Decode parses an envelope and rejects unknown kinds. Payload shape is
// checked by DecodePayload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !knownKinds[env.Kind] {
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, env.Kind)
	}
	return env, nil
}

// Encode builds a wire frame. payload may be nil for payload-less kinds.
func Encode(kind Kind, from string, payload any) ([]byte, error) {
	env := Envelope{Kind: kind, From: from}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that cannot fail to marshal (our own
// internal types). It panics on error, which would be a programming defect.
func MustEncode(kind Kind, from string, payload any) []byte {
	data, err := Encode(kind, from, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodePayload validates and decodes the payload for the envelope's kind.
// STREAM payloads and SIGNAL data pass through as raw bytes. The returned
// value is one of the typed payload structs, a string, a bool, a
// json.RawMessage, or nil for payload-less kinds.
func (e Envelope) DecodePayload() (any, error) {
	switch e.Kind {
	case KindLeave, KindNotFound, KindUserReady:
		return nil, nil

	case KindCreate:
		return decodeAs[CreatePayload](e.Payload)
	case KindJoin:
		return decodeAs[JoinPayload](e.Payload)
	case KindSyncUsers:
		return decodeAs[[]User](e.Payload)
	case KindSyncDoc:
		return decodeAs[DocSnapshot](e.Payload)
	case KindUpdateDoc:
		return decodeAs[DocMeta](e.Payload)
	case KindSyncCode:
		return decodeAs[CodeSnapshot](e.Payload)
	case KindUpdateCode:
		upd, err := decodeAs[CodeUpdate](e.Payload)
		if err != nil {
			return nil, err
		}
		if len(upd.Ops) == 0 {
			return nil, fmt.Errorf("%w: update with no ops", ErrMalformedMessage)
		}
		return upd, nil
	case KindUpdateCursor:
		return decodeAs[Cursor](e.Payload)
	case KindSyncLang, KindUpdateLang, KindStreamReady, KindUserDisconnected:
		return decodeAs[string](e.Payload)
	case KindExec:
		if len(e.Payload) == 0 {
			return ExecPayload{}, nil
		}
		return decodeAs[ExecPayload](e.Payload)
	case KindUpdateTerm:
		return decodeAs[ExecutionResult](e.Payload)
	case KindUpdateScroll:
		return decodeAs[Scroll](e.Payload)
	case KindSignal:
		sig, err := decodeAs[SignalPayload](e.Payload)
		if err != nil {
			return nil, err
		}
		if sig.To == "" {
			return nil, fmt.Errorf("%w: signal without target", ErrMalformedMessage)
		}
		return sig, nil
	case KindStream:
		if len(e.Payload) == 0 {
			return nil, fmt.Errorf("%w: empty stream payload", ErrMalformedMessage)
		}
		return e.Payload, nil
	case KindCameraOff, KindMicState, KindSpeakerState:
		return decodeAs[bool](e.Payload)
	case KindPointer:
		return decodeAs[Pointer](e.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, e.Kind)
	}
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("%w: missing payload", ErrMalformedMessage)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return v, nil
}
