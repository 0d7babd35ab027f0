package cmd

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/telekom/mailtask/pkg/mail"
)

// smtpFlags are the client-side SMTP settings shared by send and check-config.
type smtpFlags struct {
	localName string
	caFile    string
}

func (f *smtpFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.localName, "local-name", "", "Host name announced in EHLO (default localhost)")
	fs.StringVar(&f.caFile, "ca-file", "", "PEM bundle of additional CAs trusted for SMTP TLS")
}

func (f *smtpFlags) sessionOptions() ([]mail.SessionOption, error) {
	var opts []mail.SessionOption
	if f.localName != "" {
		opts = append(opts, mail.WithLocalName(f.localName))
	}
	if f.caFile != "" {
		pem, err := os.ReadFile(f.caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", f.caFile, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in " + f.caFile)
		}
		opts = append(opts, mail.WithTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}))
	}
	return opts, nil
}
