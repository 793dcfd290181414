package logging

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineLabel returns a best-effort thread identity string. Go has no
// stable OS-thread id exposed to user code; the running goroutine's id is
// the nearest analogue and is stable for the lifetime of a single log call.
func goroutineLabel() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if i := bytes.Index(b, []byte(prefix)); i >= 0 {
		b = b[i+len(prefix):]
		if sp := bytes.IndexByte(b, ' '); sp >= 0 {
			if id, err := strconv.Atoi(string(b[:sp])); err == nil {
				return "go-" + strconv.Itoa(id)
			}
		}
	}
	return "go-unknown"
}
