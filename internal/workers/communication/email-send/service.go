package emailsend

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"genieops-engine/internal/common/logger"
)

// Transport delivers one plain-text email. Send reports failure as false and never panics.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) bool
	Name() string
}

// SMTPTransport sends through an SMTP relay. Port 465 uses implicit TLS, any other port
// upgrades with STARTTLS when UseTLS is set.
type SMTPTransport struct {
	config *Config
	logger logger.Logger
}

func NewSMTPTransport(config *Config, log logger.Logger) *SMTPTransport {
	return &SMTPTransport{config: config, logger: log}
}

func (s *SMTPTransport) Name() string { return ProviderSMTP }

func (s *SMTPTransport) Send(ctx context.Context, to, subject, body string) bool {
	if s.config.SMTPUsername == "" || s.config.SMTPPassword == "" {
		s.logger.Warn("smtp credentials missing, email not sent", map[string]interface{}{"to": to})
		return false
	}

	s.logger.Info("connecting to smtp relay", map[string]interface{}{
		"to":   to,
		"host": s.config.SMTPHost,
	})

	msg := buildMessage(s.from(), to, subject, body, time.Now())
	if err := s.send(ctx, to, []byte(msg)); err != nil {
		s.logger.Error("smtp send failed", map[string]interface{}{
			"to":    to,
			"error": err.Error(),
		})
		return false
	}

	s.logger.Info("email delivered", map[string]interface{}{"to": to})
	return true
}

func (s *SMTPTransport) from() string {
	name := s.config.FromName
	if name == "" {
		name = "GenieOps Engine"
	}
	return fmt.Sprintf("%s <%s>", name, s.config.SMTPUsername)
}

func buildMessage(from, to, subject, body string, now time.Time) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)

	return builder.String()
}

func (s *SMTPTransport) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: s.config.Timeout}
	if s.config.SMTPPort == 465 {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.config.SMTPHost},
		}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (s *SMTPTransport) send(ctx context.Context, to string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}

	addr := net.JoinHostPort(s.config.SMTPHost, fmt.Sprintf("%d", s.config.SMTPPort))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if s.config.UseTLS && s.config.SMTPPort != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err = client.StartTLS(&tls.Config{ServerName: s.config.SMTPHost}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err = client.Mail(s.config.SMTPUsername); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// SESAPI is the slice of the SES client the transport needs.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESTransport struct {
	config *Config
	client SESAPI
	logger logger.Logger
}

func NewSESTransport(config *Config, client SESAPI, log logger.Logger) *SESTransport {
	return &SESTransport{config: config, client: client, logger: log}
}

func (s *SESTransport) Name() string { return ProviderSES }

func (s *SESTransport) Send(ctx context.Context, to, subject, body string) bool {
	if s.client == nil || s.config.SESFromEmail == "" {
		s.logger.Warn("ses not configured, email not sent", map[string]interface{}{"to": to})
		return false
	}

	name := s.config.FromName
	if name == "" {
		name = "GenieOps Engine"
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(fmt.Sprintf("%s <%s>", name, s.config.SESFromEmail)),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		s.logger.Error("ses send failed", map[string]interface{}{
			"to":    to,
			"error": err.Error(),
		})
		return false
	}

	s.logger.Info("email delivered", map[string]interface{}{
		"to":        to,
		"messageId": aws.ToString(out.MessageId),
	})
	return true
}

// NewTransport picks the transport for config.Provider. sesClient may be nil for SMTP.
func NewTransport(config *Config, sesClient SESAPI, log logger.Logger) Transport {
	if config.Provider == ProviderSES {
		return NewSESTransport(config, sesClient, log)
	}
	return NewSMTPTransport(config, log)
}
