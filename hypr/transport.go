package hypr

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// RawEvent is one line from the compositor event socket, split at the
// first ">>".
type RawEvent struct {
	Name string
	Data string
}

// EventConn is a live connection to the compositor event stream.
type EventConn interface {
	// Next blocks until the next event arrives or the connection
	// fails.
	Next() (RawEvent, error)

	Close() error
}

// Transport is the low-level IPC boundary. Request performs one
// command round trip and may block indefinitely; the Client bounds it
// with a worker goroutine and a timeout. Listen opens the long-lived
// event stream.
type Transport interface {
	Request(cmd string) ([]byte, error)
	Listen(ctx context.Context) (EventConn, error)
}

// Socket names inside the compositor instance directory.
const (
	commandSocket = ".socket.sock"
	eventSocket   = ".socket2.sock"
)

// SocketTransport talks to a Hyprland instance over its unix sockets.
// Each request dials a fresh connection: the command socket serves one
// round trip per connection.
type SocketTransport struct {
	dir string
}

var _ Transport = (*SocketTransport)(nil)

// NewSocketTransport locates the compositor sockets advertised
// through XDG_RUNTIME_DIR and HYPRLAND_INSTANCE_SIGNATURE. Returns a
// runtime-unavailable error when either is unset.
func NewSocketTransport() (*SocketTransport, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	signature := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if runtimeDir == "" || signature == "" {
		return nil, RuntimeUnavailableError(OpConnect)
	}
	return &SocketTransport{
		dir: filepath.Join(runtimeDir, "hypr", signature),
	}, nil
}

// Request dials the command socket, writes cmd, and reads the reply
// until the compositor closes the connection.
func (t *SocketTransport) Request(cmd string) ([]byte, error) {
	conn, err := net.Dial("unix", filepath.Join(t.dir, commandSocket))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return nil, err
	}
	return io.ReadAll(conn)
}

// Listen dials the event socket.
func (t *SocketTransport) Listen(ctx context.Context) (EventConn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", filepath.Join(t.dir, eventSocket))
	if err != nil {
		return nil, err
	}
	return &socketEventConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

type socketEventConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *socketEventConn) Next() (RawEvent, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return RawEvent{}, err
	}
	return parseRawEvent(strings.TrimRight(line, "\n")), nil
}

func (c *socketEventConn) Close() error {
	return c.conn.Close()
}

// parseRawEvent splits an EVENT>>DATA line. Lines without a separator
// become an event with empty data.
func parseRawEvent(line string) RawEvent {
	name, data, _ := strings.Cut(line, ">>")
	return RawEvent{Name: name, Data: data}
}
