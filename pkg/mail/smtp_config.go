// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/telekom/mailtask/pkg/config"
	"github.com/telekom/mailtask/pkg/task"
)

// SecretScope is the secret store namespace of the mail operator.
const SecretScope = "mail"

// Origin identifies the single source an SMTPConfig was built from.
type Origin string

const (
	// OriginUser marks a configuration taken entirely from task parameters and task secrets.
	OriginUser Origin = "user"
	// OriginSystem marks the operator-configured endpoint from config.mail.*.
	OriginSystem Origin = "system"
)

// SMTPConfig is one coherent SMTP endpoint description. All fields of a value
// come from the same Origin.
type SMTPConfig struct {
	Host     string
	Port     int
	StartTLS bool
	SSL      bool
	Debug    bool
	Username Option[string]
	Password Option[string]
	Origin   Origin
}

// Addr returns host:port.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String renders the configuration with the password redacted.
func (c SMTPConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s smtp://%s (starttls=%t ssl=%t debug=%t", c.Origin, c.Addr(), c.StartTLS, c.SSL, c.Debug)
	if u, ok := c.Username.Get(); ok {
		fmt.Fprintf(&b, " user=%s", u)
	}
	if c.Password.IsPresent() {
		b.WriteString(" password=****")
	}
	b.WriteString(")")
	return b.String()
}

// MailDefaults are the process-wide fallbacks for sender and subject.
type MailDefaults struct {
	Subject Option[string]
	From    Option[string]
}

// SystemDefaults is everything an invocation may fall back to. It is built
// once at startup and only read afterwards.
type SystemDefaults struct {
	Mail MailDefaults
	SMTP Option[SMTPConfig]
}

// NewSystemDefaults converts the config.mail section. The system SMTP endpoint
// exists only when a host is configured; it then requires a port.
func NewSystemDefaults(m config.Mail) (SystemDefaults, error) {
	defaults := SystemDefaults{
		Mail: MailDefaults{
			Subject: nonEmpty(m.Subject),
			From:    nonEmpty(m.From),
		},
		SMTP: None[SMTPConfig](),
	}

	if strings.TrimSpace(m.Host) == "" {
		return defaults, nil
	}
	if m.Port == 0 {
		return defaults, &MissingRequiredFieldError{Field: "config.mail.port"}
	}

	defaults.SMTP = Some(SMTPConfig{
		Host:     m.Host,
		Port:     m.Port,
		StartTLS: boolOr(m.TLS, true),
		SSL:      boolOr(m.SSL, false),
		Debug:    boolOr(m.Debug, false),
		Username: nonEmpty(m.Username),
		Password: nonEmpty(m.Password),
		Origin:   OriginSystem,
	})
	return defaults, nil
}

// SecretAccessList declares the keys the mail operator reads from the secret
// store. Connection settings may come from either plain parameters or
// secrets; the password only ever comes from secrets.
func SecretAccessList() task.AccessList {
	return task.AccessList{
		Scope:        SecretScope,
		SecretAccess: []string{"host", "port", "tls", "ssl", "username"},
		SecretOnly:   []string{"password"},
	}
}

func nonEmpty(s string) Option[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
