package wire

import (
	"bufio"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// PipeScheme prefixes addresses on an in-process Network, e.g. "pipe://host".
const PipeScheme = "pipe://"

const maxFrameSize = 1 << 24

var (
	// ErrNoListener indicates a pipe address nobody listens on.
	ErrNoListener = stderrors.New("no pipe listener")

	// ErrListenerExists indicates a name that is already being listened on.
	ErrListenerExists = stderrors.New("pipe listener already exists")

	// ErrListenerClosed indicates Accept on a closed listener.
	ErrListenerClosed = stderrors.New("pipe listener closed")
)

// Network is an in-process namespace of pipe listeners.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*Listener
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*Listener, 4)}
}

// Listen registers a listener under name.
func (n *Network) Listen(name string, codec message.Codec) (*Listener, error) {
	name = strings.TrimPrefix(name, PipeScheme)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrListenerExists, name)
	}

	l := &Listener{
		network: n,
		name:    name,
		codec:   codec,
		conns:   make(chan *Conn, 8),
		closed:  make(chan struct{}),
	}
	n.listeners[name] = l

	return l, nil
}

func (n *Network) dial(ctx context.Context, address string) (net.Conn, *Listener, error) {
	name := strings.TrimPrefix(address, PipeScheme)

	n.mu.Lock()
	l := n.listeners[name]
	n.mu.Unlock()

	if l == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoListener, name)
	}

	client, server := net.Pipe()

	select {
	case l.conns <- newConn(server, l.codec):
		return client, l, nil
	case <-l.closed:
		client.Close()
		server.Close()

		return nil, nil, ErrListenerClosed
	case <-ctx.Done():
		client.Close()
		server.Close()

		return nil, nil, ctx.Err()
	}
}

// Listener accepts host-side connections on a Network.
type Listener struct {
	network *Network
	name    string
	codec   message.Codec
	conns   chan *Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Address returns the address clients dial.
func (l *Listener) Address() string {
	return PipeScheme + l.name
}

// Accept waits for the next client connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting and frees the name.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)

		l.network.mu.Lock()
		delete(l.network.listeners, l.name)
		l.network.mu.Unlock()
	})

	return nil
}

// Conn is one end of a pipe connection carrying length-prefixed envelopes.
// Receive must be called from one goroutine; Send is safe for concurrent use.
type Conn struct {
	c     net.Conn
	codec message.Codec
	br    *bufio.Reader

	writeMu sync.Mutex
}

func newConn(c net.Conn, codec message.Codec) *Conn {
	return &Conn{c: c, codec: codec, br: bufio.NewReader(c)}
}

// Send writes one envelope.
func (c *Conn) Send(msg *message.Message) error {
	data, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}

	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(data))
	}

	frame := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err = c.c.Write(frame)

	return err
}

// Receive reads the next envelope.
func (c *Conn) Receive() (*message.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.br, header[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(c.br, data); err != nil {
		return nil, err
	}

	var msg message.Message
	if err := c.codec.Unmarshal(data, &msg); err != nil {
		return nil, &errors.DecodeError{RawData: data, Err: err}
	}

	return &msg, nil
}

// Close closes both directions.
func (c *Conn) Close() error {
	return c.c.Close()
}

// Pipe implements the wire by dialing a Listener on a Network.
type Pipe struct {
	log       *slog.Logger
	network   *Network
	codec     message.Codec
	onMessage func(msg *message.Message)

	mu      sync.Mutex
	conn    *Conn
	done    chan struct{}
	err     error
	closing bool
}

// NewPipe creates a pipe wire on network.
func NewPipe(log *slog.Logger, network *Network, codec message.Codec, onMessage func(msg *message.Message)) *Pipe {
	return &Pipe{
		log:       log.With("component", "wire", "wire", "pipe"),
		network:   network,
		codec:     codec,
		onMessage: onMessage,
		done:      closedChan(),
	}
}

// Connect dials the listener named by address ("pipe://name" or "name").
func (p *Pipe) Connect(ctx context.Context, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return errors.ErrWireAlreadyConnected
	}

	raw, l, err := p.network.dial(ctx, address)
	if err != nil {
		return &errors.ConnectionError{Address: address, Err: err}
	}

	if l.codec.Name() != p.codec.Name() {
		raw.Close()

		return &errors.ConnectionError{
			Address: address,
			Err:     fmt.Errorf("codec mismatch: listener uses %s, wire uses %s", l.codec.Name(), p.codec.Name()),
		}
	}

	conn := newConn(raw, p.codec)
	done := make(chan struct{})

	p.conn = conn
	p.done = done
	p.err = nil
	p.closing = false

	go p.readLoop(conn, done)

	p.log.Debug("Pipe connected", "address", address)

	return nil
}

func (p *Pipe) readLoop(conn *Conn, done chan struct{}) {
	var readErr error

	for {
		msg, err := conn.Receive()
		if err != nil {
			if decodeErr, ok := stderrors.AsType[*errors.DecodeError](err); ok {
				p.log.Warn("Dropping undecodable frame", "error", decodeErr)

				continue
			}

			readErr = err

			break
		}

		p.onMessage(msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == conn {
		p.conn = nil
	}

	if p.closing || stderrors.Is(readErr, io.EOF) || stderrors.Is(readErr, io.ErrClosedPipe) {
		readErr = nil
	}

	conn.Close()

	p.err = readErr
	close(done)

	p.log.Debug("Pipe closed", "error", readErr)
}

// Send writes msg to the host side.
func (p *Pipe) Send(_ context.Context, msg *message.Message) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errors.ErrWireNotConnected
	}

	return conn.Send(msg)
}

// Done is closed when the current connection ends.
func (p *Pipe) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}

// Err reports why the last connection ended. Nil after an orderly close.
func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// Close tears down the current connection. Connect may be called again.
func (p *Pipe) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.closing = true
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}
