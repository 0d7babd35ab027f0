package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/mailtask/pkg/mail"
)

type checkConfigOptions struct {
	connect bool
	smtp    smtpFlags
}

func NewCheckConfigCommand(rt *runtimeState) *cobra.Command {
	opts := &checkConfigOptions{}

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the system configuration",
		Long: `Loads and validates the system configuration and prints the resolved mail
defaults, the system SMTP endpoint (password redacted) and the audit sinks.
With --connect a session to the system SMTP endpoint is opened and closed again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckConfig(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.connect, "connect", false, "Connect and authenticate to the system SMTP endpoint")
	opts.smtp.register(cmd.Flags())
	return cmd
}

func runCheckConfig(ctx context.Context, rt *runtimeState, opts *checkConfigOptions) error {
	defaults, err := mail.NewSystemDefaults(rt.cfg.Config.Mail)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	sink, err := buildAuditSink(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	w := rt.Writer()
	printOption(w, "default from", defaults.Mail.From)
	printOption(w, "default subject", defaults.Mail.Subject)
	smtpCfg, ok := defaults.SMTP.Get()
	if ok {
		_, _ = fmt.Fprintf(w, "system smtp: %s\n", smtpCfg)
	} else {
		_, _ = fmt.Fprintln(w, "system smtp: not configured, tasks must supply host and port")
	}
	_, _ = fmt.Fprintf(w, "audit sinks: %s\n", strings.Join(sinkNames(sink), ", "))

	if !opts.connect {
		return nil
	}
	if !ok {
		return mail.ErrMissingSMTPConfiguration
	}
	sessionOpts, err := opts.smtp.sessionOptions()
	if err != nil {
		return err
	}
	session, err := mail.NewSessionFactory(rt.logger.Sugar(), sessionOpts...).Open(ctx, smtpCfg)
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	encrypted := session.Encrypted()
	if err := session.Close(); err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	_, _ = fmt.Fprintf(w, "connect: ok (encrypted=%t)\n", encrypted)
	return nil
}

func printOption(w io.Writer, label string, o mail.Option[string]) {
	_, _ = fmt.Fprintf(w, "%s: %s\n", label, o.OrElse("(none)"))
}
