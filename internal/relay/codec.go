// Package relay moves description text between the two users: a codec that
// makes the text paste-safe, and the surfaces (terminal, web panel) the user
// copies from and pastes into.
package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/1ureka/facelink/internal/negotiation"
)

var (
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("empty description text")

	// ErrMalformedText is returned when input is neither an encoded
	// description nor raw SDP.
	ErrMalformedText = errors.New("malformed description text")
)

// envelope is the msgpack payload behind the base64 text.
type envelope struct {
	Kind string `msgpack:"k"`
	Body string `msgpack:"b"`
}

// Decoded is the result of decoding pasted text.
type Decoded struct {
	// Hint is the kind the sender tagged the text with, or zero for raw SDP.
	// It is informational; the controller infers the kind from its own state.
	Hint negotiation.Kind
	Body string
}

// Encode serializes d into a single base64 line.
func Encode(d negotiation.Description) (string, error) {
	if d.Body() == "" {
		return "", ErrEmptyText
	}
	data, err := msgpack.Marshal(&envelope{Kind: d.Kind().String(), Body: d.Body()})
	if err != nil {
		return "", fmt.Errorf("encode description: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses text produced by Encode. Raw SDP (starting with "v=") is
// accepted as is.
func Decode(text string) (Decoded, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Decoded{}, ErrEmptyText
	}

	if strings.HasPrefix(text, "v=") {
		return Decoded{Body: normalizeSDP(text)}, nil
	}

	// Terminals sometimes wrap long lines.
	compact := strings.Join(strings.Fields(text), "")
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: not base64: %v", ErrMalformedText, err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrMalformedText, err)
	}
	if !strings.HasPrefix(env.Body, "v=") {
		return Decoded{}, fmt.Errorf("%w: body is not a session description", ErrMalformedText)
	}

	return Decoded{Hint: parseKind(env.Kind), Body: env.Body}, nil
}

func parseKind(s string) negotiation.Kind {
	switch s {
	case negotiation.KindOffer.String():
		return negotiation.KindOffer
	case negotiation.KindAnswer.String():
		return negotiation.KindAnswer
	default:
		return 0
	}
}

// normalizeSDP restores CRLF line endings lost when raw SDP is pasted.
func normalizeSDP(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}
