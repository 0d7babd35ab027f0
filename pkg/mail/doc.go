// Package mail implements the mail task: it resolves recipients, sender,
// subject and the SMTP endpoint from task parameters, task secrets and the
// system defaults, composes a MIME message with optional attachments and
// delivers it over a single SMTP session.
//
// The SMTP endpoint is either entirely task supplied or entirely the system
// one. The two are never merged, so system credentials are only ever sent to
// the system host.
package mail
