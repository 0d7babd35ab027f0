// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/telekom/mailtask/pkg/audit"
	"github.com/telekom/mailtask/pkg/metrics"
	"github.com/telekom/mailtask/pkg/render"
	"github.com/telekom/mailtask/pkg/secrets"
	"github.com/telekom/mailtask/pkg/task"
)

// BodyKey is the parameter naming the body template when _command is unset.
const BodyKey = "body"

// State is a step of one delivery attempt.
type State string

const (
	StateStart          State = "Start"
	StateConfigResolved State = "ConfigResolved"
	StateComposed       State = "Composed"
	StateSessionOpened  State = "SessionOpened"
	StateSent           State = "Sent"
	StateFailed         State = "Failed"
)

// Workspace is the task's file tree: the body template and attachments are
// read from it.
type Workspace interface {
	AttachmentSource
	TemplateCommand(engine render.Engine, format render.Format, params task.Params, aliasKey string) (string, error)
}

// Invocation is one execution request from the workflow engine.
type Invocation struct {
	TaskName  string
	Params    task.Params
	Secrets   secrets.Provider
	Workspace Workspace
}

// Sender runs mail tasks. It holds no per-invocation state and may serve
// concurrent invocations.
type Sender struct {
	resolver *Resolver
	composer *Composer
	sessions *SessionFactory
	engine   render.Engine
	audit    audit.Sink
	logger   *zap.SugaredLogger
}

func NewSender(resolver *Resolver, sessions *SessionFactory, engine render.Engine, sink audit.Sink, logger *zap.SugaredLogger) *Sender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Sender{
		resolver: resolver,
		composer: NewComposer(),
		sessions: sessions,
		engine:   engine,
		audit:    sink,
		logger:   logger.Named("mail"),
	}
}

// delivery tracks one attempt for logging, metrics and the audit trail.
type delivery struct {
	state       State
	failedAfter State
	origin      Origin
	host        string
	messageID   string
	recipients  int
	attachments int
	logger      *zap.SugaredLogger
}

func (d *delivery) advance(state State) {
	d.state = state
	d.logger.Debugw("Mail task state changed", "state", state)
}

// Run resolves, composes and sends one mail. Every failure is returned as a
// *TaskError; nothing is retried here.
//
// A send that has started runs to completion or until a transport timeout.
// Cancelling ctx does not interrupt it.
func (s *Sender) Run(ctx context.Context, inv Invocation) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	d := &delivery{state: StateStart, logger: s.logger.With("task", inv.TaskName)}

	err := s.deliver(ctx, inv, d)
	if err != nil {
		d.failedAfter = d.state
		d.advance(StateFailed)
		taskErr := newTaskError(err)
		metrics.MailSendFailure.WithLabelValues(originLabel(d.origin), string(taskErr.Kind)).Inc()
		d.logger.Errorw("Mail task failed", "failedAfter", d.failedAfter, "kind", taskErr.Kind, "retryable", taskErr.Retryable(), "error", taskErr.Message)
		s.record(ctx, inv.TaskName, d, taskErr)
		return taskErr
	}

	d.advance(StateSent)
	metrics.MailSendSuccess.WithLabelValues(string(d.origin)).Inc()
	metrics.MailSendDuration.WithLabelValues(string(d.origin)).Observe(time.Since(start).Seconds())
	metrics.MailAttachments.Add(float64(d.attachments))
	d.logger.Infow("Mail sent", "recipients", d.recipients, "attachments", d.attachments, "origin", d.origin, "messageId", d.messageID)
	s.record(ctx, inv.TaskName, d, nil)
	return nil
}

func (s *Sender) deliver(ctx context.Context, inv Invocation, d *delivery) error {
	scope := task.NewScope(inv.Params, inv.Secrets, SecretAccessList())

	isHTML, _, err := inv.Params.Bool("html")
	if err != nil {
		return err
	}
	format := render.Text
	if isHTML {
		format = render.HTML
	}
	body, err := inv.Workspace.TemplateCommand(s.engine, format, inv.Params, BodyKey)
	if err != nil {
		return fmt.Errorf("failed to render mail body: %w", err)
	}

	resolved, err := s.resolver.Resolve(scope, body)
	if err != nil {
		return err
	}
	d.origin = resolved.SMTP.Origin
	d.host = resolved.SMTP.Host
	d.recipients = len(resolved.To)
	d.attachments = len(resolved.Attachments)
	d.advance(StateConfigResolved)

	msg, err := s.composer.Compose(resolved, inv.Workspace)
	if err != nil {
		return err
	}
	if ids := msg.GetHeader("Message-ID"); len(ids) > 0 {
		d.messageID = ids[0]
	}
	d.advance(StateComposed)

	session, err := s.sessions.Open(ctx, resolved.SMTP)
	if err != nil {
		return err
	}
	d.advance(StateSessionOpened)

	if err := gomail.Send(session, msg); err != nil {
		_ = session.Close()
		// gomail flattens the cause into its message
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := session.Close(); err != nil {
		d.logger.Warnw("Closing SMTP session after delivery failed", "error", err)
	}
	return nil
}

// record writes the audit event. A failing audit sink never fails the task.
func (s *Sender) record(ctx context.Context, taskName string, d *delivery, taskErr *TaskError) {
	eventType := audit.EventMailSent
	if taskErr != nil {
		eventType = audit.EventMailFailed
	}
	event := audit.NewEvent(eventType, taskName)
	event.MessageID = d.messageID
	event.Origin = string(d.origin)
	event.Host = d.host
	event.Recipients = d.recipients
	event.Attachments = d.attachments
	if taskErr != nil {
		event.Details = map[string]any{"kind": string(taskErr.Kind), "failedAfter": string(d.failedAfter)}
		for k, v := range taskErr.Details {
			event.Details[k] = v
		}
	}

	if err := s.audit.Write(ctx, event); err != nil {
		d.logger.Warnw("Failed to write audit event", "sink", s.audit.Name(), "error", err)
	}
}

func originLabel(o Origin) string {
	if o == "" {
		return "none"
	}
	return string(o)
}
