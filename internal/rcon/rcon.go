// Package rcon implements the client side of the Source RCON protocol:
// connect, authenticate, send one command, read the reply, disconnect.
// Connections are single-shot and scoped to one attempt; there is no
// pooling. Transient failures are retried up to a total attempt cap.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Source RCON packet types. Auth responses reuse the exec-command value.
const (
	packetResponseValue = 0
	packetExecCommand   = 2
	packetAuthResponse  = 2
	packetAuth          = 3
)

const (
	defaultTimeout    = 3 * time.Second
	defaultMaxRetries = 3

	// Packet body limit fixed by the engine, plus header and terminators.
	maxPacketSize = 4096 + 10
	minPacketSize = 10

	// How long to wait for follow-up packets of a multi-packet response.
	drainTimeout = 300 * time.Millisecond
)

// ErrBadPassword is returned when the server rejects the RCON password.
// It is fatal: a wrong password will not become right on retry.
var ErrBadPassword = errors.New("incorrect rcon password")

// Error wraps a transport failure after the retry budget is exhausted.
type Error struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rcon %s failed after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client sends RCON commands to Source engine servers over TCP.
type Client struct {
	Timeout    time.Duration // per-attempt connect/read/write deadline
	MaxRetries int           // total attempts, not additional retries
}

// NewClient returns a client with the default timeout and retry cap.
func NewClient() *Client {
	return &Client{Timeout: defaultTimeout, MaxRetries: defaultMaxRetries}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}

// Send opens a connection to host:port, authenticates with password,
// executes command and returns the response text. Socket errors,
// timeouts and malformed responses are retried until the attempt cap is
// reached; a rejected password fails immediately with ErrBadPassword.
func (c *Client) Send(host string, port int, password, command string) (string, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	var lastErr error
	attempts := c.maxRetries()
	for attempt := 0; attempt < attempts; attempt++ {
		response, err := c.sendOnce(addr, password, command)
		if err == nil {
			return stripLogLine(response), nil
		}
		if errors.Is(err, ErrBadPassword) {
			return "", ErrBadPassword
		}
		lastErr = err
	}

	return "", &Error{Addr: addr, Attempts: attempts, Err: lastErr}
}

// sendOnce performs one full connect/auth/exec/read cycle. The
// connection is closed on every exit path.
func (c *Client) sendOnce(addr, password, command string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, c.timeout())
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout()))

	const authID = 1
	if err := writePacket(conn, authID, packetAuth, password); err != nil {
		return "", fmt.Errorf("sending auth: %w", err)
	}

	// Servers may send an empty RESPONSE_VALUE before the auth response.
	for {
		id, typ, _, err := readPacket(conn)
		if err != nil {
			return "", fmt.Errorf("reading auth response: %w", err)
		}
		if typ != packetAuthResponse {
			continue
		}
		if id == -1 {
			return "", ErrBadPassword
		}
		if id != authID {
			return "", fmt.Errorf("auth response id mismatch: got %d", id)
		}
		break
	}

	const execID = 2
	if err := writePacket(conn, execID, packetExecCommand, command); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}

	id, typ, body, err := readPacket(conn)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if typ != packetResponseValue || id != execID {
		return "", fmt.Errorf("unexpected response packet: id=%d type=%d", id, typ)
	}

	// Long replies span multiple packets; keep reading with a short
	// deadline and treat a timeout as end of response.
	var response strings.Builder
	response.WriteString(body)
	for {
		conn.SetReadDeadline(time.Now().Add(drainTimeout))
		id, typ, body, err := readPacket(conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("reading response continuation: %w", err)
		}
		if typ != packetResponseValue || id != execID {
			break
		}
		response.WriteString(body)
	}

	return response.String(), nil
}

// writePacket frames and sends one RCON packet: little-endian int32
// size, id, type, then the NUL-terminated body plus an empty trailer.
func writePacket(conn net.Conn, id, typ int32, body string) error {
	size := int32(4 + 4 + len(body) + 2)
	buf := make([]byte, 0, 4+size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typ))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)

	_, err := conn.Write(buf)
	return err
}

// readPacket reads and validates one RCON packet.
func readPacket(conn net.Conn) (id, typ int32, body string, err error) {
	var sizeBuf [4]byte
	if _, err = io.ReadFull(conn, sizeBuf[:]); err != nil {
		return 0, 0, "", err
	}

	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < minPacketSize || size > maxPacketSize {
		return 0, 0, "", fmt.Errorf("invalid packet size %d", size)
	}

	payload := make([]byte, size)
	if _, err = io.ReadFull(conn, payload); err != nil {
		return 0, 0, "", fmt.Errorf("short packet read: %w", err)
	}

	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	typ = int32(binary.LittleEndian.Uint32(payload[4:8]))
	body = strings.TrimRight(string(payload[8:]), "\x00")
	return id, typ, body, nil
}

// stripLogLine removes the trailing log line the engine appends to RCON
// replies when logging is enabled.
func stripLogLine(response string) string {
	lines := strings.Split(response, "\n")
	if len(lines) >= 1 && strings.Contains(lines[len(lines)-1], "rcon from") {
		return strings.Join(lines[:len(lines)-1], "\n")
	}
	return response
}
