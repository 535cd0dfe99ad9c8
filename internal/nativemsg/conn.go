package nativemsg

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Conn is a native messaging port over a reader/writer pair, normally the
// host's stdin and stdout. Receive must be called from one goroutine;
// Send may be called concurrently.
type Conn struct {
	r  io.Reader
	mu sync.Mutex
	w  io.Writer
}

// NewConn wraps r and w as a port
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: r, w: w}
}

// Receive reads the next request. It returns io.EOF when the browser
// closes the port.
func (c *Conn) Receive() (Request, error) {
	payload, err := ReadFrame(c.r, MaxInboundSize)
	if err != nil {
		return Request{}, err
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("%w: missing action", ErrMalformedMessage)
	}
	return req, nil
}

// Send writes v as one frame
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteJSON(c.w, v)
}
