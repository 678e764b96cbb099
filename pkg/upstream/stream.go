package upstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const doneSentinel = "[DONE]"

// StreamChunk carries one SSE data payload from the upstream stream, or the
// terminal error if the stream broke mid-flight. A chunk with Err set is
// always the last one delivered.
type StreamChunk struct {
	Data []byte
	Err  error
}

// StreamChan delivers upstream SSE chunks until the stream ends or the
// consumer closes it. The upstream [DONE] sentinel is consumed, not delivered.
type StreamChan struct {
	ch        <-chan StreamChunk
	closeFunc func()
}

func (sc *StreamChan) Chan() <-chan StreamChunk {
	return sc.ch
}

// Close stops the reader goroutine and releases the upstream response body.
// Safe to call after the channel has drained.
func (sc *StreamChan) Close() {
	sc.closeFunc()
}

func newStreamChan(ctx context.Context, body io.ReadCloser) *StreamChan {
	ch := make(chan StreamChunk)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		defer body.Close()

		emit := func(chunk StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		dataBuffer := make([]byte, 0, 512)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				logrus.WithContext(ctx).Debugf("[upstream] stream canceled: %v", ctx.Err())
				return
			}
			line := scanner.Bytes()

			// https://html.spec.whatwg.org/multipage/server-sent-events.html#event-stream-interpretation
			if len(line) == 0 {
				if len(dataBuffer) == 0 {
					continue
				}
				if bytes.Equal(dataBuffer, []byte(doneSentinel)) {
					return
				}
				if !emit(StreamChunk{Data: dataBuffer}) {
					return
				}
				dataBuffer = make([]byte, 0, 512)
				continue
			}

			value, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				// comments and non-data fields (event, id, retry) are dropped
				continue
			}
			value = bytes.TrimPrefix(value, []byte(" "))
			dataBuffer = append(dataBuffer, value...)
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logrus.WithContext(ctx).Warnf("[upstream] scan stream error: %v", err)
			emit(StreamChunk{Err: fmt.Errorf("read upstream stream: %w", err)})
		}
	}()

	return &StreamChan{ch: ch, closeFunc: func() {
		cancel()
		// unblocks a scanner waiting on the socket
		body.Close()
	}}
}
