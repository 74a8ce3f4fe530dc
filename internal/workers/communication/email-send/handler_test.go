package emailsend

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
)

// ==========================
// Mocks
// ==========================

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

type fakeTransport struct {
	ok    bool
	calls int
}

func (f *fakeTransport) Send(context.Context, string, string, string) bool {
	f.calls++
	return f.ok
}

func (f *fakeTransport) Name() string { return "fake" }

// ==========================
// Fake SMTP relay
// ==========================

type smtpRelay struct {
	addr string

	mu       sync.Mutex
	commands []string
	data     string
}

// startRelay accepts one plain-text SMTP session on loopback.
func startRelay(t *testing.T) *smtpRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	relay := &smtpRelay{addr: ln.Addr().String()}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		relay.serve(conn)
	}()
	return relay
}

func (r *smtpRelay) serve(conn net.Conn) {
	rd := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 localhost ESMTP")
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO", "HELO":
			reply("250-localhost")
			reply("250 AUTH PLAIN")
		case "AUTH":
			reply("235 2.7.0 Authentication successful")
		case "MAIL", "RCPT":
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := rd.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			r.mu.Lock()
			r.data = b.String()
			r.mu.Unlock()
			reply("250 OK: queued")
		case "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func relayConfig(t *testing.T, addr string) *Config {
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SMTPHost = host
	cfg.SMTPPort = port
	cfg.SMTPUsername = "genie@example.com"
	cfg.SMTPPassword = "app-password"
	cfg.UseTLS = false
	cfg.Timeout = 2 * time.Second
	return cfg
}

// ==========================
// Config
// ==========================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing smtp host", func(c *Config) { c.SMTPHost = "" }, "smtp_host is required"},
		{"port zero", func(c *Config) { c.SMTPPort = 0 }, "smtp_port must be between 1 and 65535"},
		{"port too high", func(c *Config) { c.SMTPPort = 70000 }, "smtp_port must be between 1 and 65535"},
		{"bad timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"ses without identity", func(c *Config) { c.Provider = ProviderSES }, "ses_from_email is required"},
		{"unknown provider", func(c *Config) { c.Provider = "pigeon" }, "unknown provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			_, err := NewHandler(HandlerOptions{CustomConfig: cfg, Logger: logger.NewTestLogger(t)})
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// ==========================
// SMTP
// ==========================

func TestBuildMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	msg := buildMessage("GenieOps Engine <genie@example.com>", "lead@example.com", "Your checklist", "Hello there", now)

	assert.True(t, strings.HasPrefix(msg, "From: GenieOps Engine <genie@example.com>\r\n"))
	assert.Contains(t, msg, "To: lead@example.com\r\n")
	assert.Contains(t, msg, "Subject: Your checklist\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nHello there"))
}

func TestSMTPTransport_Send(t *testing.T) {
	relay := startRelay(t)
	transport := NewSMTPTransport(relayConfig(t, relay.addr), logger.NewTestLogger(t))

	ok := transport.Send(context.Background(), "lead@example.com", "Welcome", "Thanks for downloading")
	require.True(t, ok)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Contains(t, relay.commands, "MAIL FROM:<genie@example.com>")
	assert.Contains(t, relay.commands, "RCPT TO:<lead@example.com>")
	assert.Contains(t, relay.data, "From: GenieOps Engine <genie@example.com>")
	assert.Contains(t, relay.data, "Thanks for downloading")
}

func TestSMTPTransport_Failures(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		transport := NewSMTPTransport(cfg, logger.NewTestLogger(t))
		assert.False(t, transport.Send(context.Background(), "lead@example.com", "s", "b"))
	})

	t.Run("relay unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		transport := NewSMTPTransport(relayConfig(t, addr), logger.NewTestLogger(t))
		assert.False(t, transport.Send(context.Background(), "lead@example.com", "s", "b"))
	})
}

// ==========================
// SES
// ==========================

func TestSESTransport_Send(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderSES
	cfg.SESFromEmail = "engine@genieops.example"

	t.Run("delivered", func(t *testing.T) {
		sesMock := new(MockSES)
		sesMock.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
			return aws.ToString(in.Source) == "GenieOps Engine <engine@genieops.example>" &&
				in.Destination.ToAddresses[0] == "lead@example.com" &&
				aws.ToString(in.Message.Subject.Data) == "Welcome"
		})).Return(&ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil)

		transport := NewTransport(cfg, sesMock, logger.NewTestLogger(t))
		assert.Equal(t, ProviderSES, transport.Name())
		assert.True(t, transport.Send(context.Background(), "lead@example.com", "Welcome", "Hi"))
		sesMock.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		sesMock := new(MockSES)
		sesMock.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("MessageRejected"))

		transport := NewSESTransport(cfg, sesMock, logger.NewTestLogger(t))
		assert.False(t, transport.Send(context.Background(), "lead@example.com", "Welcome", "Hi"))
	})
}

// ==========================
// Handler
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name      string
		input     *Input
		ok        bool
		wantCode  apperrors.ErrorCode
		wantCalls int
	}{
		{"delivered", &Input{To: "lead@example.com", Subject: "s", Body: "b"}, true, "", 1},
		{"transport failed", &Input{To: "lead@example.com", Subject: "s", Body: "b"}, false, apperrors.ErrCodeDeliveryFailure, 1},
		{"bad address", &Input{To: "not-an-email", Subject: "s", Body: "b"}, true, apperrors.ErrCodeValidationFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{ok: tt.ok}
			h, err := NewHandler(HandlerOptions{Logger: logger.NewTestLogger(t), Transport: transport})
			require.NoError(t, err)

			out, err := h.Execute(context.Background(), tt.input)
			assert.Equal(t, tt.wantCalls, transport.calls)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, out.Success)
			assert.Equal(t, "fake", out.Provider)
		})
	}
}
