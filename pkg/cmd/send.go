package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/mailtask/pkg/mail"
	"github.com/telekom/mailtask/pkg/metrics"
	"github.com/telekom/mailtask/pkg/render"
	"github.com/telekom/mailtask/pkg/secrets"
	"github.com/telekom/mailtask/pkg/system"
	"github.com/telekom/mailtask/pkg/task"
	"github.com/telekom/mailtask/pkg/workspace"
)

// Exit codes of "mailtask send". Retryable failures use EX_TEMPFAIL so the
// calling engine can reschedule the task.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitRetryable = 75
)

type sendOptions struct {
	taskFile     string
	workspaceDir string
	taskName     string
	smtp         smtpFlags
}

func NewSendCommand(rt *runtimeState) *cobra.Command {
	opts := &sendOptions{workspaceDir: "."}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the mail described by a task file",
		Long: `Resolves the SMTP endpoint, renders the body template from the workspace,
attaches the listed workspace files and delivers the message in one SMTP session.

The SMTP endpoint comes either entirely from the task (host, port, tls, ssl,
username and the secret mail.password) or entirely from config.mail.*.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.taskFile, "task", "t", "", "Task parameter file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.workspaceDir, "workspace", "w", opts.workspaceDir, "Task workspace holding the body template and attachments")
	cmd.Flags().StringVar(&opts.taskName, "task-name", "", "Task name for logs and audit events (default: task file name)")
	opts.smtp.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func (o *sendOptions) name() string {
	if o.taskName != "" {
		return o.taskName
	}
	base := filepath.Base(o.taskFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runSend(ctx context.Context, rt *runtimeState, opts *sendOptions) error {
	params, err := task.LoadFile(opts.taskFile)
	if err != nil {
		return err
	}
	provider, err := secrets.Open(rt.secretsSpec)
	if err != nil {
		return err
	}
	ws, err := workspace.Open(opts.workspaceDir)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	defaults, err := mail.NewSystemDefaults(rt.cfg.Config.Mail)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	sessionOpts, err := opts.smtp.sessionOptions()
	if err != nil {
		return err
	}

	log := rt.logger.Sugar().With(system.TaskFields(opts.name(), ws.Dir())...)

	sink, err := buildAuditSink(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnw("Failed to flush audit sink", "sink", sink.Name(), "error", err)
		}
	}()

	sender := mail.NewSender(
		mail.NewResolver(defaults, log),
		mail.NewSessionFactory(log, sessionOpts...),
		render.NewTemplateRenderer(),
		sink,
		log,
	)

	runErr := sender.Run(ctx, mail.Invocation{
		TaskName:  opts.name(),
		Params:    params,
		Secrets:   provider,
		Workspace: ws,
	})

	if path := rt.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warnw("Failed to export metrics", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	_, _ = fmt.Fprintf(rt.Writer(), "mail task %s: sent\n", opts.name())
	return nil
}

// ExitCode maps the error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var taskErr *mail.TaskError
	if errors.As(err, &taskErr) && taskErr.Retryable() {
		return ExitRetryable
	}
	return ExitFailure
}
