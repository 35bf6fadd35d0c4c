// Package link opens the byte stream transport of the bridge by URL.
//
//	serial:///dev/ttyUSB0?baud=115200   serial port, 8N1
//	/dev/ttyUSB0                        same, with the default baud rate
//	ws://host:port/path                 websocket, binary frames
//	tcp://host:port                     tcp client
//	tcp://:port?listen=true             tcp server, accepts one connection
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"golang.org/x/net/websocket"
)

// DefaultBaudRate is used when a serial URL doesn't specify baud.
const DefaultBaudRate = 115200

// DefaultDialTimeout is the timeout of tcp and websocket dials.
const DefaultDialTimeout = 5 * time.Second

// Supported schemes.
const (
	SchemeSerial    = "serial"
	SchemeWebsocket = "ws"
	SchemeWSS       = "wss"
	SchemeTCP       = "tcp"
)

// ErrUnknownScheme indicates the link URL scheme is not supported.
var ErrUnknownScheme = errors.New("unknown link scheme")

// Target is a parsed link URL.
type Target struct {
	Scheme   string
	Address  string
	BaudRate int
	Listen   bool
	Origin   string
}

// String returns the URL form.
func (t *Target) String() string {
	switch t.Scheme {
	case SchemeSerial:
		return fmt.Sprintf("serial://%s?baud=%d", t.Address, t.BaudRate)
	case SchemeTCP:
		if t.Listen {
			return "tcp://" + t.Address + "?listen=true"
		}
		return "tcp://" + t.Address
	}
	return t.Address
}

// Parse parses a link URL.
func Parse(rawURL string) (*Target, error) {
	if strings.HasPrefix(rawURL, "/") {
		return &Target{Scheme: SchemeSerial, Address: rawURL, BaudRate: DefaultBaudRate}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	switch u.Scheme {
	case SchemeSerial:
		t := &Target{Scheme: SchemeSerial, Address: u.Host + u.Path, BaudRate: DefaultBaudRate}
		if t.Address == "" {
			return nil, fmt.Errorf("serial port missing in %q", rawURL)
		}
		if baud := query.Get("baud"); baud != "" {
			if t.BaudRate, err = strconv.Atoi(baud); err != nil || t.BaudRate <= 0 {
				return nil, fmt.Errorf("invalid baud rate %q", baud)
			}
		}
		return t, nil
	case SchemeWebsocket, SchemeWSS:
		origin := query.Get("origin")
		if origin == "" {
			origin = "http://localhost/"
		}
		return &Target{Scheme: SchemeWebsocket, Address: rawURL, Origin: origin}, nil
	case SchemeTCP:
		if u.Host == "" {
			return nil, fmt.Errorf("tcp address missing in %q", rawURL)
		}
		listen, _ := strconv.ParseBool(query.Get("listen"))
		return &Target{Scheme: SchemeTCP, Address: u.Host, Listen: listen}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
}

// Open parses the URL and opens the link.
func Open(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	t, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return t.Open(ctx)
}

// Open opens the link.
func (t *Target) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	glog.Infof("open link %s", t)
	switch t.Scheme {
	case SchemeSerial:
		return openSerial(t.Address, t.BaudRate)
	case SchemeWebsocket:
		return openWebsocket(t.Address, t.Origin)
	case SchemeTCP:
		if t.Listen {
			return acceptTCP(ctx, t.Address)
		}
		var d net.Dialer
		ctx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
		return d.DialContext(ctx, "tcp", t.Address)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, t.Scheme)
}

func openSerial(port string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

func openWebsocket(rawURL, origin string) (io.ReadWriteCloser, error) {
	conf, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, err
	}
	conf.Dialer = &net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := websocket.DialConfig(conf)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

func acceptTCP(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	glog.Infof("waiting for link connection on %s", ln.Addr())
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	conn, err := ln.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}
