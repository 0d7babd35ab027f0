package mail

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type testSMTPOptions struct {
	// startTLS advertises STARTTLS until the upgrade happened.
	startTLS bool
	// implicitTLS serves TLS from the first byte.
	implicitTLS bool
	// auth is the AUTH extension value, e.g. "PLAIN LOGIN". Empty disables AUTH.
	auth string
	// rejectRcpt answers RCPT TO for this address with 550.
	rejectRcpt string
}

// testSMTPServer is a minimal SMTP server on a random port that serves one
// connection and records what the client sent.
type testSMTPServer struct {
	host string
	port int

	tlsConfig *tls.Config
	roots     *x509.CertPool

	mu       sync.Mutex
	commands []string
	data     string
	username string
	password string
	upgraded bool

	ln   net.Listener
	wg   sync.WaitGroup
	opts testSMTPOptions
}

// startTestSMTPServer starts the server and stops it when the test ends.
func startTestSMTPServer(t *testing.T, opts testSMTPOptions) *testSMTPServer {
	t.Helper()
	cert, roots := testCertificate(t)
	s := &testSMTPServer{
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		roots:     roots,
		opts:      opts,
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	if opts.implicitTLS {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.ln = ln

	addr := ln.Addr().(*net.TCPAddr)
	s.host = "127.0.0.1"
	s.port = addr.Port

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.stop)
	return s
}

// clientTLSConfig trusts the server certificate.
func (s *testSMTPServer) clientTLSConfig() *tls.Config {
	return &tls.Config{RootCAs: s.roots, MinVersion: tls.VersionTLS12}
}

func (s *testSMTPServer) stop() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *testSMTPServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, line)
}

// Commands returns the command lines received, credentials included.
func (s *testSMTPServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testSMTPServer) HasCommand(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (s *testSMTPServer) Data() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *testSMTPServer) Credentials() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.password
}

func (s *testSMTPServer) Upgraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgraded
}

func (s *testSMTPServer) serve() {
	defer s.wg.Done()
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}

	reply("220 localhost Test SMTP Service Ready")
	for {
		line, ok := readLine()
		if !ok {
			return
		}
		s.record(line)
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			lines := []string{"localhost Hello"}
			if s.opts.startTLS && !s.Upgraded() {
				lines = append(lines, "STARTTLS")
			}
			if s.opts.auth != "" {
				lines = append(lines, "AUTH "+s.opts.auth)
			}
			lines = append(lines, "8BITMIME")
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				reply("250%s%s", sep, l)
			}
		case cmd == "STARTTLS":
			reply("220 Ready to start TLS")
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			r = bufio.NewReader(conn)
			s.mu.Lock()
			s.upgraded = true
			s.mu.Unlock()
		case strings.HasPrefix(cmd, "AUTH PLAIN"):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				reply("501 initial response required")
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(fields[2])
			parts := strings.Split(string(raw), "\x00")
			if err != nil || len(parts) != 3 {
				reply("535 malformed credentials")
				continue
			}
			s.mu.Lock()
			s.username, s.password = parts[1], parts[2]
			s.mu.Unlock()
			reply("235 Authentication successful")
		case strings.HasPrefix(cmd, "AUTH LOGIN"):
			reply("334 %s", base64.StdEncoding.EncodeToString([]byte("Username:")))
			user, ok := readLine()
			if !ok {
				return
			}
			reply("334 %s", base64.StdEncoding.EncodeToString([]byte("Password:")))
			pass, ok := readLine()
			if !ok {
				return
			}
			u, _ := base64.StdEncoding.DecodeString(user)
			p, _ := base64.StdEncoding.DecodeString(pass)
			s.mu.Lock()
			s.username, s.password = string(u), string(p)
			s.mu.Unlock()
			reply("235 Authentication successful")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			if s.opts.rejectRcpt != "" && strings.Contains(line, s.opts.rejectRcpt) {
				reply("550 mailbox unavailable")
				continue
			}
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				dline, ok := readLine()
				if !ok {
					return
				}
				if dline == "." {
					break
				}
				b.WriteString(strings.TrimPrefix(dline, "."))
				b.WriteString("\r\n")
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 OK: queued as 12345")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

// testCertificate creates a self-signed certificate for 127.0.0.1.
func testCertificate(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "mailtask test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, roots
}
