/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package icecast implements an Icecast source client: a single persistent
// PUT connection that carries the continuous encoded audio stream. It speaks
// the same source protocol BUTT and Mixxx use against Icecast 2.4+.
package icecast

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_cast/internal/media"
)

const (
	defaultUsername = "source"
	userAgent       = "muninncast"

	// The server must answer the Expect: 100-continue handshake promptly;
	// stream writes after negotiation carry no deadline at all.
	negotiateTimeout = 10 * time.Second
)

// Metadata describes the stream to listeners.
type Metadata struct {
	Name        string
	Genre       string
	Description string
	Public      bool
}

// Client is an Icecast source connection. It is driven by a single execution
// context: Negotiate once, then Write per packet, then Close.
type Client struct {
	host     string // host:port
	mount    string
	scheme   string
	username string
	password string
	meta     Metadata
	logger   zerolog.Logger

	conn net.Conn
}

// New parses an endpoint URL of the form
// http[s]://user:pass@host:port/mount. Credentials are extracted here and
// never appear in the client's logged or returned representations.
func New(endpoint string, meta Metadata, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("endpoint has no mount path")
	}

	username := defaultUsername
	password := ""
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			username = name
		}
		password, _ = u.User.Password()
	}
	if password == "" {
		return nil, fmt.Errorf("endpoint has no source password")
	}

	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":8000"
		}
	}

	return &Client{
		host:     host,
		mount:    u.Path,
		scheme:   u.Scheme,
		username: username,
		password: password,
		meta:     meta,
		logger:   logger.With().Str("component", "icecast").Str("mount", u.Path).Logger(),
	}, nil
}

// Host returns the scrubbed server address, safe for logs.
func (c *Client) Host() string { return c.host }

// Mount returns the mount path.
func (c *Client) Mount() string { return c.mount }

// Negotiate opens the connection and performs the one-time source handshake
// using the first track's audio parameters. Called exactly once per process.
func (c *Client) Negotiate(ctx context.Context, info media.TrackInfo) error {
	if c.conn != nil {
		return fmt.Errorf("already negotiated")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.host, err)
	}
	if c.scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: strings.Split(c.host, ":")[0]})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))

	var req strings.Builder
	fmt.Fprintf(&req, "PUT %s HTTP/1.1\r\n", c.mount)
	fmt.Fprintf(&req, "Host: %s\r\n", c.host)
	fmt.Fprintf(&req, "Authorization: Basic %s\r\n", auth)
	fmt.Fprintf(&req, "User-Agent: %s\r\n", userAgent)
	fmt.Fprintf(&req, "Content-Type: %s\r\n", info.ContentType)
	fmt.Fprintf(&req, "Expect: 100-continue\r\n")
	if c.meta.Name != "" {
		fmt.Fprintf(&req, "Ice-Name: %s\r\n", c.meta.Name)
	}
	if c.meta.Genre != "" {
		fmt.Fprintf(&req, "Ice-Genre: %s\r\n", c.meta.Genre)
	}
	if c.meta.Description != "" {
		fmt.Fprintf(&req, "Ice-Description: %s\r\n", c.meta.Description)
	}
	fmt.Fprintf(&req, "Ice-Public: %d\r\n", boolToInt(c.meta.Public))
	fmt.Fprintf(&req, "Ice-Audio-Info: samplerate=%d;channels=%d\r\n", info.SampleRate, info.Channels)
	req.WriteString("\r\n")

	deadline := time.Now().Add(negotiateTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return fmt.Errorf("send handshake: %w", err)
	}

	status, err := readStatus(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read handshake response: %w", err)
	}
	// Icecast answers the expect with 100 Continue; some servers skip
	// straight to 200 OK. Anything else is a rejection.
	if status != 100 && status != 200 {
		conn.Close()
		return fmt.Errorf("server rejected source connection: status %d", status)
	}

	// Stream writes are open-ended from here on; a hung sink stalls the
	// broadcast rather than timing out.
	_ = conn.SetDeadline(time.Time{})
	c.conn = conn

	c.logger.Info().
		Str("host", c.host).
		Str("content_type", info.ContentType).
		Int("sample_rate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("source connection negotiated")
	return nil
}

// Write sends one packet payload. Any error means the connection is broken.
func (c *Client) Write(pkt *media.Packet) error {
	if c.conn == nil {
		return fmt.Errorf("not negotiated")
	}
	_, err := c.conn.Write(pkt.Data)
	return err
}

// Close finalizes the transport. Safe on every exit path, including after a
// failed write.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.logger.Info().Msg("source connection closed")
	return err
}

// readStatus parses the status code off an HTTP response status line.
func readStatus(conn net.Conn) (int, error) {
	line, err := bufio.NewReaderSize(conn, 256).ReadString('\n')
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", strings.TrimSpace(line))
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code %q", fields[1])
	}
	return code, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
