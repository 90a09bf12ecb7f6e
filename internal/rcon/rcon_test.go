package rcon

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer is an in-process Source RCON server for client tests.
type fakeServer struct {
	listener net.Listener
	password string
	handler  func(command string) string
	conns    atomic.Int64
}

func newFakeServer(t *testing.T, password string, handler func(string) string) *fakeServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fs := &fakeServer{listener: listener, password: password, handler: handler}
	go fs.serve()
	t.Cleanup(func() { listener.Close() })
	return fs
}

func (fs *fakeServer) serve() {
	for {
		conn, err := fs.listener.Accept()
		if err != nil {
			return
		}
		fs.conns.Add(1)
		go fs.handleConn(conn)
	}
}

func (fs *fakeServer) handleConn(conn net.Conn) {
	defer conn.Close()

	id, typ, body, err := readTestPacket(conn)
	if err != nil || typ != packetAuth {
		return
	}

	if body != fs.password {
		writeTestPacket(conn, -1, packetAuthResponse, "")
		return
	}
	writeTestPacket(conn, id, packetAuthResponse, "")

	id, typ, body, err = readTestPacket(conn)
	if err != nil || typ != packetExecCommand {
		return
	}
	writeTestPacket(conn, id, packetResponseValue, fs.handler(body))
}

func readTestPacket(conn net.Conn) (int32, int32, string, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
		return 0, 0, "", err
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	payload := make([]byte, size)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, 0, "", err
	}
	id := int32(binary.LittleEndian.Uint32(payload[0:4]))
	typ := int32(binary.LittleEndian.Uint32(payload[4:8]))
	body := strings.TrimRight(string(payload[8:]), "\x00")
	return id, typ, body, nil
}

func writeTestPacket(conn net.Conn, id, typ int32, body string) {
	size := int32(4 + 4 + len(body) + 2)
	buf := make([]byte, 0, 4+size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typ))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)
	conn.Write(buf)
}

func serverHostPort(t *testing.T, fs *fakeServer) (string, int) {
	t.Helper()
	addr := fs.listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func testClient() *Client {
	return &Client{Timeout: 500 * time.Millisecond, MaxRetries: 3}
}

func TestSendCommand(t *testing.T) {
	fs := newFakeServer(t, "secret", func(cmd string) string {
		if cmd == "status" {
			return "hostname: test server\nversion : 1.37"
		}
		return ""
	})
	host, port := serverHostPort(t, fs)

	response, err := testClient().Send(host, port, "secret", "status")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(response, "hostname: test server") {
		t.Errorf("unexpected response: %q", response)
	}
}

func TestSendStripsLogLine(t *testing.T) {
	fs := newFakeServer(t, "secret", func(cmd string) string {
		return "some output\nL 01/01/2026: rcon from \"1.2.3.4\": command \"status\""
	})
	host, port := serverHostPort(t, fs)

	response, err := testClient().Send(host, port, "secret", "status")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if response != "some output" {
		t.Errorf("log line not stripped: %q", response)
	}
}

func TestBadPasswordNotRetried(t *testing.T) {
	fs := newFakeServer(t, "secret", func(cmd string) string { return "" })
	host, port := serverHostPort(t, fs)

	_, err := testClient().Send(host, port, "wrong", "status")
	if !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if n := fs.conns.Load(); n != 1 {
		t.Errorf("auth failure consumed %d attempts, want 1", n)
	}
}

func TestRetryExhaustion(t *testing.T) {
	// A listener that accepts connections but never responds: every
	// attempt must time out, and the client must make exactly
	// MaxRetries attempts before giving up.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	var conns atomic.Int64
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conns.Add(1)
			defer conn.Close()
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	client := &Client{Timeout: 200 * time.Millisecond, MaxRetries: 3}

	_, err = client.Send(addr.IP.String(), addr.Port, "secret", "status")
	if err == nil {
		t.Fatal("expected error from unresponsive server")
	}

	var rconErr *Error
	if !errors.As(err, &rconErr) {
		t.Fatalf("expected *rcon.Error, got %T: %v", err, err)
	}
	if rconErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rconErr.Attempts)
	}
	if n := conns.Load(); n != 3 {
		t.Errorf("made %d connection attempts, want exactly 3", n)
	}
}

func TestConnectionRefused(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	client := &Client{Timeout: 200 * time.Millisecond, MaxRetries: 2}
	_, err = client.Send(addr.IP.String(), addr.Port, "secret", "status")
	if err == nil {
		t.Fatal("expected connection error")
	}

	var rconErr *Error
	if !errors.As(err, &rconErr) {
		t.Fatalf("expected *rcon.Error, got %T", err)
	}
}

func TestStripLogLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no log line", "plain output", "plain output"},
		{"log line removed", "output\nrcon from \"1.2.3.4\"", "output"},
		{"log line mid-response kept", "rcon from x\noutput", "rcon from x\noutput"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripLogLine(tt.in); got != tt.want {
				t.Errorf("stripLogLine(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
