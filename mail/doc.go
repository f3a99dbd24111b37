// Package mail provides agentauth.Mailer implementations.
//
// [SMTPMailer] delivers over SMTP, upgrading with STARTTLS before PLAIN auth. [LogMailer]
// only logs the message and is meant for development.
package mail
