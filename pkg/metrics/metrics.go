package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtask_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"origin"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtask_mail_send_failure_total",
		Help: "Total number of failed mail sends by failure kind (config, attachment, transport)",
	}, []string{"origin", "kind"})
	// Origin is "none" when the failure happened before an SMTP endpoint was resolved.
	MailSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailtask_mail_send_duration_seconds",
		Help:    "Duration of mail task invocations from resolution to SMTP QUIT",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"origin"})
	MailAttachments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailtask_mail_attachments_total",
		Help: "Total number of attachments composed into outgoing mails",
	})

	// Resolution metrics
	SMTPConfigResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtask_smtp_config_resolved_total",
		Help: "SMTP configurations selected per invocation, by origin (user, system)",
	}, []string{"origin"})
	SMTPConfigMissing = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailtask_smtp_config_missing_total",
		Help: "Invocations that had neither a user nor a system SMTP host",
	})
	DeprecatedPasswordParam = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailtask_deprecated_password_param_total",
		Help: "Invocations that passed the SMTP password as a plain task parameter",
	})

	// Audit metrics
	AuditEventsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtask_audit_events_written_total",
		Help: "Delivery audit events written, by sink",
	}, []string{"sink"})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailtask_audit_sink_errors_total",
		Help: "Delivery audit events that failed to be written, by sink and error type",
	}, []string{"sink", "error_type"})
)

func init() {
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailSendDuration)
	prometheus.MustRegister(MailAttachments)
	prometheus.MustRegister(SMTPConfigResolved)
	prometheus.MustRegister(SMTPConfigMissing)
	prometheus.MustRegister(DeprecatedPasswordParam)
	prometheus.MustRegister(AuditEventsWritten)
	prometheus.MustRegister(AuditSinkErrors)
}

// WriteTextfile writes all registered metrics to path in the Prometheus text
// format, for collection by the node_exporter textfile collector after a
// one-shot run.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
