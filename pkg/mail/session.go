// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	maillog "github.com/wneessen/go-mail/log"
	"github.com/wneessen/go-mail/smtp"
	"go.uber.org/zap"
)

const (
	// ConnectTimeout bounds TCP connect and, for implicit TLS, the handshake.
	ConnectTimeout = 10 * time.Second
	// IOTimeout bounds every single read or write on an open session.
	IOTimeout = 60 * time.Second
)

// transportError annotates an SMTP failure with the protocol step it happened in.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.op, e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Is(target error) bool { return target == ErrTransport }

// SessionOption customizes a SessionFactory.
type SessionOption func(*SessionFactory)

// WithTLSConfig sets the TLS client configuration used for implicit TLS and
// STARTTLS. ServerName defaults to the SMTP host.
func WithTLSConfig(cfg *tls.Config) SessionOption {
	return func(f *SessionFactory) {
		f.tlsConfig = cfg
	}
}

// WithLocalName sets the name announced in EHLO. Defaults to "localhost".
func WithLocalName(name string) SessionOption {
	return func(f *SessionFactory) {
		f.localName = name
	}
}

// SessionFactory opens authenticated SMTP sessions.
type SessionFactory struct {
	logger    *zap.SugaredLogger
	tlsConfig *tls.Config
	localName string
}

func NewSessionFactory(logger *zap.SugaredLogger, opts ...SessionOption) *SessionFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &SessionFactory{logger: logger.Named("smtp")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *SessionFactory) tlsConfigFor(host string) *tls.Config {
	if f.tlsConfig == nil {
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	cfg := f.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// Open connects to cfg.Addr(), negotiates TLS and authenticates. With
// cfg.SSL the connection is TLS from the first byte and never falls back to
// plaintext. Otherwise STARTTLS is issued only when cfg.StartTLS is set and
// the server offers it. AUTH happens only when cfg.Username is present.
//
// ctx bounds the TCP connect only. Once connected, the session is limited by
// IOTimeout per exchange.
func (f *SessionFactory) Open(ctx context.Context, cfg SMTPConfig) (*Session, error) {
	tlsConfig := f.tlsConfigFor(cfg.Host)
	dialer := &net.Dialer{Timeout: ConnectTimeout}

	var conn net.Conn
	var err error
	if cfg.SSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", cfg.Addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Addr())
	}
	if err != nil {
		return nil, &transportError{op: "connect " + cfg.Addr(), err: err}
	}

	logger := f.logger.With("host", cfg.Host, "port", cfg.Port, "origin", cfg.Origin)
	s := &Session{conn: conn, logger: logger, encrypted: cfg.SSL}
	if err := s.handshake(cfg, f.localName, tlsConfig); err != nil {
		s.abort()
		return nil, err
	}
	logger.Debugw("SMTP session opened", "encrypted", s.encrypted)
	return s, nil
}

func (s *Session) handshake(cfg SMTPConfig, localName string, tlsConfig *tls.Config) error {
	if err := s.conn.SetDeadline(time.Now().Add(IOTimeout)); err != nil {
		return &transportError{op: "set deadline", err: err}
	}
	client, err := smtp.NewClient(s.conn, cfg.Host)
	if err != nil {
		return &transportError{op: "greeting", err: err}
	}
	s.client = client
	if cfg.Debug {
		client.SetLogger(&traceLogger{logger: s.logger})
		client.SetDebugLog(true)
	}

	if localName == "" {
		localName = "localhost"
	}
	if err := s.step("EHLO", func() error { return client.Hello(localName) }); err != nil {
		return err
	}

	if cfg.StartTLS && !cfg.SSL {
		if offered, _ := client.Extension("STARTTLS"); offered {
			if err := s.step("STARTTLS", func() error { return client.StartTLS(tlsConfig) }); err != nil {
				return err
			}
			s.encrypted = true
		} else {
			s.logger.Debug("Server does not offer STARTTLS, continuing without TLS")
		}
	}

	username, ok := cfg.Username.Get()
	if !ok {
		return nil
	}
	ok, mechanisms := client.Extension("AUTH")
	if !ok {
		return &transportError{op: "AUTH", err: errors.New("server does not support authentication")}
	}
	auth := chooseAuth(mechanisms, cfg.Host, username, cfg.Password.OrElse(""))
	return s.step("AUTH", func() error { return client.Auth(auth) })
}

// chooseAuth picks the mechanism the same way gomail's Dialer does: CRAM-MD5
// when offered, LOGIN when it is the only password mechanism, PLAIN otherwise.
// PLAIN and LOGIN refuse to run over an unencrypted remote connection.
func chooseAuth(mechanisms, host, username, password string) smtp.Auth {
	switch {
	case strings.Contains(mechanisms, "CRAM-MD5"):
		return smtp.CRAMMD5Auth(username, password)
	case strings.Contains(mechanisms, "LOGIN") && !strings.Contains(mechanisms, "PLAIN"):
		return smtp.LoginAuth(username, password, host, false)
	default:
		return smtp.PlainAuth("", username, password, host, false)
	}
}

// Session is one open SMTP connection. It implements gomail.SendCloser and is
// not safe for concurrent use.
type Session struct {
	conn      net.Conn
	client    *smtp.Client
	logger    *zap.SugaredLogger
	encrypted bool
}

// Encrypted reports whether the session runs over implicit TLS or STARTTLS.
func (s *Session) Encrypted() bool {
	return s.encrypted
}

// Send transmits one message with the given envelope. from and to are bare
// addresses as gomail passes them.
func (s *Session) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.step("MAIL FROM", func() error { return s.client.Mail(envelopeAddress(from)) }); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.step("RCPT TO", func() error { return s.client.Rcpt(envelopeAddress(addr)) }); err != nil {
			return err
		}
	}

	var w io.WriteCloser
	if err := s.step("DATA", func() (err error) {
		w, err = s.client.Data()
		return err
	}); err != nil {
		return err
	}
	if _, err := msg.WriteTo(&deadlineWriter{w: w, s: s}); err != nil {
		_ = w.Close()
		return &transportError{op: "DATA", err: err}
	}
	return s.step("end of DATA", w.Close)
}

// envelopeAddress wraps addr in the angle brackets the smtp client expects.
func envelopeAddress(addr string) string {
	return "<" + addr + ">"
}

// Close ends the session with QUIT and releases the connection.
func (s *Session) Close() error {
	err := s.step("QUIT", s.client.Quit)
	if err != nil {
		_ = s.client.Close()
	}
	return err
}

// abort drops the connection without QUIT.
func (s *Session) abort() {
	if s.client != nil {
		_ = s.client.Close()
		return
	}
	_ = s.conn.Close()
}

// step refreshes the I/O deadline and runs one protocol exchange.
func (s *Session) step(op string, fn func() error) error {
	if err := s.extend(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return &transportError{op: op, err: err}
	}
	return nil
}

func (s *Session) extend() error {
	if err := s.client.UpdateDeadline(IOTimeout); err != nil {
		return &transportError{op: "set deadline", err: err}
	}
	return nil
}

// deadlineWriter extends the deadline before each chunk of message data.
type deadlineWriter struct {
	w io.Writer
	s *Session
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if err := d.s.extend(); err != nil {
		return 0, err
	}
	return d.w.Write(p)
}

// traceLogger writes the SMTP command dialogue to zap. It logs at info level
// so that a task with debug enabled is traced without raising the process
// log level. The client replaces AUTH payloads before they reach it.
type traceLogger struct {
	logger *zap.SugaredLogger
}

func (t *traceLogger) line(l maillog.Log) {
	prefix := "S: "
	if l.Direction == maillog.DirClientToServer {
		prefix = "C: "
	}
	t.logger.Info(prefix + fmt.Sprintf(l.Format, l.Messages...))
}

func (t *traceLogger) Debugf(l maillog.Log) { t.line(l) }
func (t *traceLogger) Infof(l maillog.Log)  { t.line(l) }
func (t *traceLogger) Warnf(l maillog.Log)  { t.line(l) }
func (t *traceLogger) Errorf(l maillog.Log) { t.line(l) }
