package feedback

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

// ProtocolError describes an inbound message that could not be accepted. The reason is safe to
// show to the client.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// Decode parses one inbound JSON envelope and validates the fields its kind requires.
func Decode(raw []byte) (Inbound, error) {
	var env map[string]any
	if err := sonic.Unmarshal(raw, &env); err != nil || env == nil {
		return Inbound{}, protocolErrorf("invalid message format: expected a JSON object")
	}
	kind, ok := env["type"].(string)
	if !ok || kind == "" {
		return Inbound{}, protocolErrorf("missing message type")
	}

	switch Kind(kind) {
	case KindPing:
		return Inbound{Kind: KindPing}, nil
	case KindTranscript:
		return decodeTranscript(env)
	case KindAudioChunk:
		return decodeAudioChunk(env)
	case KindMetadataUpdate, kindMetadata:
		return decodeMetadata(env), nil
	case KindNewQuestion:
		q := &NewQuestion{QuestionID: env[MetaQuestionID]}
		q.QuestionText, _ = env[MetaQuestionText].(string)
		return Inbound{Kind: KindNewQuestion, Question: q}, nil
	default:
		return Inbound{}, protocolErrorf("unknown message type %q", kind)
	}
}

// Encode serializes an outbound message.
func Encode(f Feedback) ([]byte, error) {
	if f.Suggestions == nil {
		f.Suggestions = []string{}
	}
	return sonic.Marshal(f)
}

func decodeTranscript(env map[string]any) (Inbound, error) {
	text, ok := env["data"].(string)
	if !ok {
		return Inbound{}, protocolErrorf("transcript requires string field \"data\"")
	}
	t := &Transcript{Text: text}
	if c, present, err := optionalUnit(env, "confidence"); err != nil {
		return Inbound{}, err
	} else if present {
		t.Confidence = &c
	}
	return Inbound{Kind: KindTranscript, Transcript: t}, nil
}

func decodeAudioChunk(env map[string]any) (Inbound, error) {
	encoded, ok := env["data"].(string)
	if !ok {
		return Inbound{}, protocolErrorf("audio_chunk requires string field \"data\"")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Inbound{}, protocolErrorf("audio_chunk data is not valid base64")
	}

	rawIndex, ok := env["chunk_index"].(float64)
	if !ok {
		return Inbound{}, protocolErrorf("audio_chunk requires integer field \"chunk_index\"")
	}
	if rawIndex < 0 || rawIndex != math.Trunc(rawIndex) || rawIndex > math.MaxInt32 {
		return Inbound{}, protocolErrorf("chunk_index must be a non-negative integer")
	}
	isFinal, ok := env["is_final"].(bool)
	if !ok {
		return Inbound{}, protocolErrorf("audio_chunk requires boolean field \"is_final\"")
	}

	chunk := &AudioChunk{Data: data, ChunkIndex: int(rawIndex), IsFinal: isFinal}
	chunk.Transcript, _ = env["transcript"].(string)
	if v, present, err := optionalUnit(env, "volume"); err != nil {
		return Inbound{}, err
	} else if present {
		chunk.Volume = &v
	}
	return Inbound{Kind: KindAudioChunk, Audio: chunk}, nil
}

// decodeMetadata accepts either {"type":..., "data": {...}} or the key/value pairs inline.
func decodeMetadata(env map[string]any) Inbound {
	if nested, ok := env["data"].(map[string]any); ok {
		return Inbound{Kind: KindMetadataUpdate, Metadata: nested}
	}
	m := make(map[string]any, len(env))
	for k, v := range env {
		if k != "type" {
			m[k] = v
		}
	}
	return Inbound{Kind: KindMetadataUpdate, Metadata: m}
}

func optionalUnit(env map[string]any, key string) (float64, bool, error) {
	raw, present := env[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	v, ok := raw.(float64)
	if !ok || v < 0 || v > 1 {
		return 0, false, protocolErrorf("%s must be a number between 0 and 1", key)
	}
	return v, true, nil
}
