// Package eventstream decodes OpenAI style streamed chat-completion bodies.
//
// The body is newline delimited. Only lines starting with "data: " carry
// events; the literal "data: [DONE]" ends the stream.
package eventstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// ErrTerminated is returned by Decode once the stream has ended.
var ErrTerminated = errors.New("eventstream: terminated")

// MalformedEventError reports a data line whose payload is not a valid event.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// UpstreamError is an error object delivered in-band on a data line.
type UpstreamError struct {
	Message string
	Type    string
	Code    string
}

func (e *UpstreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("upstream %s: %s", e.Type, e.Message)
	}
	return "upstream: " + e.Message
}

// State of a Decoder.
type State int

const (
	AwaitingLine State = iota
	Terminated
)

func (s State) String() string {
	if s == Terminated {
		return "terminated"
	}
	return "awaiting_line"
}

// Decoder turns lines into fragments. It is not safe for concurrent use.
type Decoder struct {
	state State
}

// NewDecoder returns a decoder awaiting its first line.
func NewDecoder() *Decoder { return &Decoder{} }

// State reports the current decoder state.
func (d *Decoder) State() State { return d.state }

// Terminated reports whether the stream ended, either on [DONE] or on error.
func (d *Decoder) Terminated() bool { return d.state == Terminated }

type chunk struct {
	Choices []struct {
		Delta *struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// Decode consumes one line. ok is true when the line carried content at
// choices[0].delta.content; the fragment may still be empty. Reaching [DONE]
// terminates the decoder and returns ("", false, nil). Any error also
// terminates it.
func (d *Decoder) Decode(line string) (fragment string, ok bool, err error) {
	if d.state == Terminated {
		return "", false, ErrTerminated
	}
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}
	payload := line[len(dataPrefix):]
	if payload == doneMarker {
		d.state = Terminated
		return "", false, nil
	}
	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		d.state = Terminated
		return "", false, &MalformedEventError{Line: line, Err: err}
	}
	if c.Error != nil {
		d.state = Terminated
		return "", false, &UpstreamError{Message: c.Error.Message, Type: c.Error.Type, Code: codeString(c.Error.Code)}
	}
	if len(c.Choices) == 0 || c.Choices[0].Delta == nil || c.Choices[0].Delta.Content == nil {
		return "", false, nil
	}
	return *c.Choices[0].Delta.Content, true, nil
}

func codeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
