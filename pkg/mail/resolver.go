// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/telekom/mailtask/pkg/metrics"
	"github.com/telekom/mailtask/pkg/task"
)

// DefaultAttachmentContentType is used when an attachment does not name one.
const DefaultAttachmentContentType = "application/octet-stream"

// AttachmentSpec describes one file of the task workspace to attach.
type AttachmentSpec struct {
	Path        string
	ContentType string
	FileName    string
}

// ResolvedMailParams is everything needed to compose and send one mail.
type ResolvedMailParams struct {
	To          []string
	From        string
	Subject     string
	IsHTML      bool
	Body        string
	Attachments []AttachmentSpec
	SMTP        SMTPConfig
}

// Resolver turns task parameters, task secrets and the system defaults into
// ResolvedMailParams.
type Resolver struct {
	defaults SystemDefaults
	logger   *zap.SugaredLogger
}

// NewResolver creates a Resolver bound to the process-wide defaults.
func NewResolver(defaults SystemDefaults, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{defaults: defaults, logger: logger.Named("resolver")}
}

// Resolve resolves all mail fields for one invocation. body is the already
// rendered message text.
func (r *Resolver) Resolve(scope *task.Scope, body string) (ResolvedMailParams, error) {
	params := scope.Params()

	to, err := ResolveRecipients(params)
	if err != nil {
		return ResolvedMailParams{}, err
	}
	subject, err := ResolveSubject(params, r.defaults.Mail)
	if err != nil {
		return ResolvedMailParams{}, err
	}
	from, err := ResolveFrom(params, r.defaults.Mail)
	if err != nil {
		return ResolvedMailParams{}, err
	}
	isHTML, _, err := params.Bool("html")
	if err != nil {
		return ResolvedMailParams{}, err
	}
	attachments, err := ResolveAttachments(params)
	if err != nil {
		return ResolvedMailParams{}, err
	}
	smtpConfig, err := r.ResolveSMTPConfig(scope)
	if err != nil {
		return ResolvedMailParams{}, err
	}

	return ResolvedMailParams{
		To:          to,
		From:        from,
		Subject:     subject,
		IsHTML:      isHTML,
		Body:        body,
		Attachments: attachments,
		SMTP:        smtpConfig,
	}, nil
}

// ResolveSMTPConfig picks the user endpoint when the task names a host and
// the system endpoint otherwise.
func (r *Resolver) ResolveSMTPConfig(scope *task.Scope) (SMTPConfig, error) {
	user, err := r.UserSMTPConfig(scope)
	if err != nil {
		return SMTPConfig{}, err
	}
	cfg, err := SelectSMTPConfig(user, r.defaults.SMTP)
	if err != nil {
		metrics.SMTPConfigMissing.Inc()
		return SMTPConfig{}, err
	}
	metrics.SMTPConfigResolved.WithLabelValues(string(cfg.Origin)).Inc()
	r.logger.Debugw("Resolved SMTP configuration", "smtp", cfg.String())
	return cfg, nil
}

// SelectSMTPConfig returns user when present, else system, else
// ErrMissingSMTPConfiguration. The chosen value is returned whole; fields of
// the two candidates are never combined, so system credentials cannot be
// handed to a task-chosen host and task credentials are never grafted onto
// the system host.
func SelectSMTPConfig(user, system Option[SMTPConfig]) (SMTPConfig, error) {
	if cfg, ok := user.Or(system).Get(); ok {
		return cfg, nil
	}
	return SMTPConfig{}, ErrMissingSMTPConfiguration
}

// UserSMTPConfig builds the task-supplied endpoint. It is absent unless a host
// is given through task parameters or mail secrets. Every field is read from
// the task scope only; unset optional fields take their built-in defaults and
// never system values.
func (r *Resolver) UserSMTPConfig(scope *task.Scope) (Option[SMTPConfig], error) {
	host, ok, err := scope.String("host")
	if err != nil {
		return None[SMTPConfig](), err
	}
	if !ok || strings.TrimSpace(host) == "" {
		return None[SMTPConfig](), nil
	}

	port, ok, err := scope.Int("port")
	if err != nil {
		return None[SMTPConfig](), err
	}
	if !ok {
		return None[SMTPConfig](), &MissingRequiredFieldError{Field: "port"}
	}
	if port < 1 || port > 65535 {
		return None[SMTPConfig](), &task.ParamError{Key: "port", Want: "a port between 1 and 65535", Err: fmt.Errorf("got %d", port)}
	}

	startTLS, err := scopeBool(scope, "tls", true)
	if err != nil {
		return None[SMTPConfig](), err
	}
	ssl, err := scopeBool(scope, "ssl", false)
	if err != nil {
		return None[SMTPConfig](), err
	}
	debug, err := scopeBool(scope, "debug", false)
	if err != nil {
		return None[SMTPConfig](), err
	}
	username, err := scopeString(scope, "username")
	if err != nil {
		return None[SMTPConfig](), err
	}
	password, err := scopeString(scope, "password")
	if err != nil {
		return None[SMTPConfig](), err
	}

	password, err = r.deprecatedPassword(scope.Params(), password)
	if err != nil {
		return None[SMTPConfig](), err
	}

	return Some(SMTPConfig{
		Host:     host,
		Port:     port,
		StartTLS: startTLS,
		SSL:      ssl,
		Debug:    debug,
		Username: username,
		Password: password,
		Origin:   OriginUser,
	}), nil
}

// deprecatedPassword is the compatibility path for tasks that still pass the
// SMTP password as a plain parameter instead of a secret. The parameter is
// honored only when the secret store has no password, and every use is
// reported.
func (r *Resolver) deprecatedPassword(params task.Params, secret Option[string]) (Option[string], error) {
	plain, ok, err := params.String("password")
	if err != nil || !ok {
		return secret, err
	}

	r.logger.Warnw("Unsecure 'password' parameter is deprecated, store the SMTP password as secret 'mail.password' instead",
		"secretPresent", secret.IsPresent())
	metrics.DeprecatedPasswordParam.Inc()

	return secret.Or(Some(plain)), nil
}

// ResolveSubject returns the task subject, else the system default subject.
func ResolveSubject(params task.Params, defaults MailDefaults) (string, error) {
	subject, err := paramOption(params, "subject")
	if err != nil {
		return "", err
	}
	return Precedence("subject", subject, defaults.Subject)
}

// ResolveFrom returns the task sender, else the system default sender. The
// result must be a valid address.
func ResolveFrom(params task.Params, defaults MailDefaults) (string, error) {
	from, err := paramOption(params, "from")
	if err != nil {
		return "", err
	}
	value, err := Precedence("from", from, defaults.From)
	if err != nil {
		return "", err
	}
	if _, err := ParseAddress("from", value); err != nil {
		return "", err
	}
	return value, nil
}

// ResolveRecipients reads "to" as a single address or a list of addresses and
// validates each entry. Order is preserved.
func ResolveRecipients(params task.Params) ([]string, error) {
	to, ok, err := params.StringList("to")
	if err != nil {
		return nil, err
	}
	if !ok || len(to) == 0 {
		return nil, &MissingRequiredFieldError{Field: "to"}
	}
	for _, addr := range to {
		if _, err := ParseAddress("to", addr); err != nil {
			return nil, err
		}
	}
	return to, nil
}

// ResolveAttachments reads the optional attach_files list.
func ResolveAttachments(params task.Params) ([]AttachmentSpec, error) {
	items, err := params.ParamsList("attach_files")
	if err != nil {
		return nil, err
	}

	specs := make([]AttachmentSpec, 0, len(items))
	for i, item := range items {
		path, ok, err := item.String("path")
		if err != nil {
			return nil, err
		}
		if !ok || path == "" {
			return nil, &MissingRequiredFieldError{Field: fmt.Sprintf("attach_files[%d].path", i)}
		}

		fileName, ok, err := item.String("filename")
		if err != nil {
			return nil, err
		}
		if !ok || fileName == "" {
			fileName = DefaultFileName(path)
		}
		if fileName == "" {
			// a path ending in '/' names no file
			return nil, &MissingRequiredFieldError{Field: fmt.Sprintf("attach_files[%d].path", i)}
		}

		contentType, ok, err := item.String("content_type")
		if err != nil {
			return nil, err
		}
		if !ok {
			contentType = DefaultAttachmentContentType
		}

		specs = append(specs, AttachmentSpec{Path: path, ContentType: contentType, FileName: fileName})
	}
	return specs, nil
}

// DefaultFileName returns the part of path after the last '/', or path itself.
func DefaultFileName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// ParseAddress validates addr as an RFC 5322 address of the form local@domain,
// optionally with a display name.
func ParseAddress(field, addr string) (*mail.Address, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return nil, &InvalidAddressError{Field: field, Address: addr, Err: err}
	}
	local, domain, found := strings.Cut(parsed.Address, "@")
	if !found || local == "" || domain == "" {
		return nil, &InvalidAddressError{Field: field, Address: addr}
	}
	return parsed, nil
}

func paramOption(params task.Params, key string) (Option[string], error) {
	v, ok, err := params.String(key)
	if err != nil || !ok {
		return None[string](), err
	}
	return Some(v), nil
}

func scopeString(scope *task.Scope, key string) (Option[string], error) {
	v, ok, err := scope.String(key)
	if err != nil || !ok {
		return None[string](), err
	}
	return Some(v), nil
}

func scopeBool(scope *task.Scope, key string, fallback bool) (bool, error) {
	v, ok, err := scope.Bool(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}
