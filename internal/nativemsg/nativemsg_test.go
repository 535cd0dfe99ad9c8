package nativemsg

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(payload string) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func TestWriteFrame_LayoutIsLengthPrefixed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`), MaxOutboundSize))

	assert.Equal(t, frame(`{"a":1}`), buf.Bytes())
}

func TestReadFrame_Sequence(t *testing.T) {
	t.Parallel()
	stream := bytes.NewReader(append(frame(`{"action":"x"}`), frame(`{}`)...))

	first, err := ReadFrame(stream, MaxInboundSize)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"x"}`, string(first))

	second, err := ReadFrame(stream, MaxInboundSize)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(second))

	_, err = ReadFrame(stream, MaxInboundSize)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Truncated(t *testing.T) {
	t.Parallel()

	_, err := ReadFrame(bytes.NewReader([]byte{1, 0}), MaxInboundSize)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFrame(bytes.NewReader(frame(`{"action":"x"}`)[:8]), MaxInboundSize)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameSizeLimits(t *testing.T) {
	t.Parallel()

	_, err := ReadFrame(bytes.NewReader(frame(strings.Repeat("x", 32))), 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	var buf bytes.Buffer
	err = WriteFrame(&buf, make([]byte, 17), 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "nothing may be written for a rejected frame")
}

func TestConn_ReceiveAndDecode(t *testing.T) {
	t.Parallel()
	in := bytes.NewReader(frame(`{"id":"7","action":"trackWebsite","data":{"domain":"reddit.com","timeSpent":15,"category":"distracting"}}`))
	conn := NewConn(in, io.Discard)

	req, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "7", req.ID)
	assert.Equal(t, ActionTrackWebsite, req.Action)

	var data TrackWebsiteData
	require.NoError(t, req.Decode(&data))
	assert.Equal(t, TrackWebsiteData{Domain: "reddit.com", TimeSpent: 15, Category: "distracting"}, data)
}

func TestConn_ReceiveMalformed(t *testing.T) {
	t.Parallel()
	in := bytes.NewReader(append(append(frame(`not json`), frame(`{"data":{}}`)...), frame(`{"action":"getTrackingData"}`)...))
	conn := NewConn(in, io.Discard)

	_, err := conn.Receive()
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = conn.Receive()
	assert.ErrorIs(t, err, ErrMalformedMessage)

	req, err := conn.Receive()
	require.NoError(t, err, "stream must stay usable after a malformed frame")
	assert.Equal(t, ActionGetTrackingData, req.Action)

	assert.Error(t, req.Decode(&TrackWebsiteData{}), "missing data")
}

func TestConn_SendIsSerialized(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	conn := NewConn(nil, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Send(SuccessResponse("x")))
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		payload, err := ReadFrame(&buf, MaxOutboundSize)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"x","success":true}`, string(payload))
	}
}

func TestResponses(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	require.NoError(t, WriteJSON(&buf, ErrorResponse("", io.ErrClosedPipe)))
	require.NoError(t, WriteJSON(&buf, Response{TrackingData: map[string]int{}}))
	require.NoError(t, WriteJSON(&buf, Command{Command: CommandQueryActiveTab, Data: QueryActiveTabData{RequestID: "r1"}}))

	payload, _ := ReadFrame(&buf, MaxOutboundSize)
	assert.JSONEq(t, `{"success":false,"error":"io: read/write on closed pipe"}`, string(payload))
	payload, _ = ReadFrame(&buf, MaxOutboundSize)
	assert.JSONEq(t, `{"trackingData":{}}`, string(payload))
	payload, _ = ReadFrame(&buf, MaxOutboundSize)
	assert.JSONEq(t, `{"command":"queryActiveTab","data":{"requestId":"r1"}}`, string(payload))
}
