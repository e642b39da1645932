package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Commands understood by the owning dictation process.
const (
	CommandStatus = "status"
	CommandToggle = "toggle"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// maxMessageBytes caps one newline-delimited message in either direction.
const maxMessageBytes = 16 << 10

// ErrMessageTooLarge is returned when a peer sends a line longer than maxMessageBytes.
var ErrMessageTooLarge = errors.New("ipc message too large")

// Request is one newline-delimited JSON command sent to the owning process.
type Request struct {
	Command string `json:"command"`
}

// Response reports the owner's dictation state. Interim and Final carry the
// live recognizer text while the native path is listening.
type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Path      string `json:"path,omitempty"`
	Language  string `json:"language,omitempty"`
	Interim   string `json:"interim,omitempty"`
	Final     string `json:"final,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Err converts a rejected response into an error.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("request rejected")
	}
	if r.State != "" {
		return fmt.Errorf("%s (state: %s)", r.Error, r.State)
	}
	return errors.New(r.Error)
}

func writeMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readMessage decodes one line into v. The direction ("request"/"response") is
// inferred from v for error text.
func readMessage(r *bufio.Reader, v any) error {
	kind := "response"
	if _, ok := v.(*Request); ok {
		kind = "request"
	}

	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxMessageBytes {
			return fmt.Errorf("read %s: %w", kind, ErrMessageTooLarge)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", kind, err)
		}
		break
	}

	if err := json.Unmarshal(bytes.TrimSpace(line), v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}
