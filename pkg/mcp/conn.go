package mcp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// stdioConn owns the pipe pair of one running subprocess provider. A single
// pipe carries one request/response at a time, so the exchange mutex is held
// for the full write-then-read round trip; concurrent callers queue.
type stdioConn struct {
	mu    sync.Mutex // serializes request/response exchanges
	stdin io.WriteCloser
	lines chan string
}

// newStdioConn wires a connection over an arbitrary writer/reader pair and
// starts the line reader. The supervisor passes subprocess pipes; tests pass
// in-memory pipes.
func newStdioConn(stdin io.WriteCloser, stdout io.Reader) *stdioConn {
	c := &stdioConn{
		stdin: stdin,
		lines: make(chan string, 16),
	}

	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()

	return c
}

// errRPCTimeout marks a deadline expiry during an exchange. The gateway
// converts it into a structured {"error": "timed out"} result.
var errRPCTimeout = fmt.Errorf("timed out")

// roundTrip writes one request line and reads response lines until matchID
// accepts one or the deadline expires. Stale lines (late responses from a
// previously timed-out call) are skipped by the id match.
func (c *stdioConn) roundTrip(payload []byte, timeout time.Duration, matchID func(line string) bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.stdin.Write(append(payload, '\n')); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return "", fmt.Errorf("provider closed its output pipe")
			}
			if matchID(line) {
				return line, nil
			}
			slog.Debug("Discarding uncorrelated provider output line", "line", line)
		case <-deadline.C:
			return "", errRPCTimeout
		}
	}
}

// close releases the stdin pipe; the reader goroutine exits when the
// process side closes stdout.
func (c *stdioConn) close() {
	if c.stdin != nil {
		c.stdin.Close()
	}
}

// logStderr drains a subprocess's stderr into the structured log, one line
// at a time, until the pipe closes.
func logStderr(name string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		slog.Debug("Tool provider stderr", "provider", name, "line", scanner.Text())
	}
}
