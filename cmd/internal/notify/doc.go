// Package notify delivers transactional email.
//
// A Mailer is chosen at startup from Config: the console mailer writes messages to the
// structured log, the resend mailer posts them to the Resend HTTP API. Dispatcher renders
// the verification, password reset and one-time login emails and adapts them to
// verification.Notifier.
package notify
