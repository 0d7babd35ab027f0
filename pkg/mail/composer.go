// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// AttachmentSource loads attachment bytes by workspace-relative path.
type AttachmentSource interface {
	ReadFile(path string) ([]byte, error)
}

// Composer builds MIME messages from resolved mail parameters.
type Composer struct {
	now func() time.Time
}

// NewComposer creates a Composer stamping messages with the current time.
func NewComposer() *Composer {
	return &Composer{now: time.Now}
}

// Compose builds the message. Attachments are read from source before
// anything is sent, so an unreadable file fails the task without a
// connection ever being opened.
func (c *Composer) Compose(p ResolvedMailParams, source AttachmentSource) (*gomail.Message, error) {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"), gomail.SetEncoding(gomail.QuotedPrintable))

	m.SetHeader("From", p.From)
	m.SetHeader("Sender", p.From)
	m.SetHeader("To", p.To...)
	m.SetHeader("Subject", p.Subject)
	m.SetDateHeader("Date", c.now())
	m.SetHeader("Message-ID", messageID(p.From))

	if p.IsHTML {
		m.SetBody("text/html", p.Body)
	} else {
		m.SetBody("text/plain", p.Body)
	}

	for _, a := range p.Attachments {
		data, err := source.ReadFile(a.Path)
		if err != nil {
			return nil, &AttachmentReadError{Path: a.Path, Err: err}
		}
		contentType, err := attachmentContentType(a)
		if err != nil {
			return nil, err
		}
		m.Attach(a.FileName,
			gomail.Rename(a.FileName),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}

	return m, nil
}

// attachmentContentType adds the name parameter to the declared media type.
func attachmentContentType(a AttachmentSpec) (string, error) {
	mediaType, params, err := mime.ParseMediaType(a.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: content_type %q of attachment %s: %v", ErrInvalidParameter, a.ContentType, a.Path, err)
	}
	params["name"] = a.FileName
	return mime.FormatMediaType(mediaType, params), nil
}

// messageID returns a unique Message-ID in the sender's domain.
func messageID(from string) string {
	domain := "localhost"
	if addr, err := ParseAddress("from", from); err == nil {
		domain = addr.Address[strings.LastIndex(addr.Address, "@")+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
