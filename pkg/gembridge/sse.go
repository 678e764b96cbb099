package gembridge

import (
	"github.com/gin-gonic/gin"
)

// doneEvent is the literal terminal payload of a well-formed stream. It is
// not JSON-encoded.
const doneEvent = "[DONE]"

// writeSSEData frames one payload as a server-sent event and flushes it so
// the caller sees chunks as they arrive.
func writeSSEData(w gin.ResponseWriter, data []byte) {
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	w.Flush()
}
