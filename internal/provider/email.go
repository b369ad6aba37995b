package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"path/filepath"
	"strings"

	"github.com/kursadbilgin/notification-hub/internal/clientcache"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

// smtpClient is the cached, config-derived state for one SMTP account.
type smtpClient struct {
	addr     string
	host     string
	username string
	password string
	from     string
}

// NewSMTPClientCache builds the cache of SMTP account state keyed by config
// id, from host/port/username/password/from properties.
func NewSMTPClientCache(logger *zap.Logger, opts ...clientcache.Option[*smtpClient]) (*clientcache.Cache[*smtpClient], error) {
	return clientcache.New("email", func(cfg domain.ProviderConfig) (*smtpClient, error) {
		host := cfg.StringProperty("host")
		if host == "" {
			return nil, fmt.Errorf("smtp config has no host property")
		}
		port := cfg.IntProperty("port", 587)
		from := cfg.StringProperty("from")
		if from == "" {
			from = cfg.StringProperty("username")
		}
		return &smtpClient{
			addr:     fmt.Sprintf("%s:%d", host, port),
			host:     host,
			username: cfg.StringProperty("username"),
			password: cfg.StringProperty("password"),
			from:     from,
		}, nil
	}, logger, opts...)
}

// SMTPEmailSender delivers HTML mail over SMTP. The transport is the
// standard library: provider wire SDKs are out of scope and mail submission
// here is one MIME message over one authenticated connection.
type SMTPEmailSender struct {
	clients *clientcache.Cache[*smtpClient]

	// sendMail is swapped in tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailSender(clients *clientcache.Cache[*smtpClient]) (*SMTPEmailSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &SMTPEmailSender{clients: clients, sendMail: smtp.SendMail}, nil
}

func (s *SMTPEmailSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
	client, err := s.clients.GetClient(ctx, cfg)
	if err != nil {
		return &SendError{Message: "failed to build smtp client", Cause: err}
	}

	recipients := make([]string, 0, 1+len(msg.CC)+len(msg.BCC))
	recipients = append(recipients, msg.To)
	recipients = append(recipients, msg.CC...)
	recipients = append(recipients, msg.BCC...)

	raw := buildMIMEMessage(client.from, msg)

	var auth smtp.Auth
	if client.username != "" {
		auth = smtp.PlainAuth("", client.username, client.password, client.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(client.addr, auth, client.from, recipients, raw)
	}()

	select {
	case <-ctx.Done():
		return &SendError{Message: "smtp send canceled", Cause: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &SendError{Message: "smtp send failed", Transient: true, Cause: err}
		}
		return nil
	}
}

func buildMIMEMessage(from string, msg Message) []byte {
	const boundary = "nhub-mixed-boundary"

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	if len(msg.CC) > 0 {
		b.WriteString("Cc: " + strings.Join(msg.CC, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Body)
		return []byte(b.String())
	}

	b.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	for _, att := range msg.Attachments {
		contentType := mime.TypeByExtension(filepath.Ext(att.Name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", att.Name))
		b.WriteString(base64.StdEncoding.EncodeToString(att.Data))
		b.WriteString("\r\n")
	}

	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
