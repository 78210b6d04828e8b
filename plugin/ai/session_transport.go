package ai

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// conversationField is the non-standard body field that threads a
// conversation across completion requests.
const conversationField = "chatSessionId"

// sessionTransport writes the conversation id into outgoing request bodies
// and reads it back from response bodies.
type sessionTransport struct {
	base           http.RoundTripper
	conversationID string

	mu       sync.Mutex
	received string
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.conversationID != "" && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read completion request body")
		}
		body, err = sjson.SetBytes(body, conversationField, t.conversationID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set conversation id")
		}
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read completion response body")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if id := gjson.GetBytes(body, conversationField); id.Exists() && id.String() != "" {
		t.mu.Lock()
		t.received = id.String()
		t.mu.Unlock()
	}
	return resp, nil
}

func (t *sessionTransport) captured() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.received
}
