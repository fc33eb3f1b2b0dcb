package deliver

import (
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Mailer transmits one HTML message to the recipients. Recipients go on the
// envelope only, never into a visible header, so they stay hidden from each
// other.
type Mailer interface {
	Send(from string, recipients []string, subject, htmlBody string) error
}

type smtpMailer struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPMailer(host string, port int, username, password string) Mailer {
	return &smtpMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// Send performs the explicit session handshake: connect, upgrade to TLS,
// authenticate, then transmit. Any step failing aborts the whole send.
func (m *smtpMailer) Send(from string, recipients []string, subject, htmlBody string) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	msg, err := buildMessage(from, subject, htmlBody)
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles a multipart/alternative MIME message with a single
// HTML part. No To header: BCC semantics.
func buildMessage(from, subject, htmlBody string) ([]byte, error) {
	var body strings.Builder
	mw := multipart.NewWriter(&body)

	var headers strings.Builder
	headers.WriteString("From: " + from + "\r\n")
	headers.WriteString("Subject: " + subject + "\r\n")
	headers.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	headers.WriteString("MIME-Version: 1.0\r\n")
	headers.WriteString("Content-Type: multipart/alternative; boundary=" + mw.Boundary() + "\r\n")
	headers.WriteString("\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build mime part: %w", err)
	}
	if _, err := part.Write([]byte(htmlBody)); err != nil {
		return nil, fmt.Errorf("write mime part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}

	return []byte(headers.String() + body.String()), nil
}
