package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/i18n"
)

// smtpStub accepts every command and records the DATA payloads.
type smtpStub struct {
	ln       net.Listener
	mu       sync.Mutex
	messages []string
	rcpts    []string
}

func newSMTPStub(t *testing.T) *smtpStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &smtpStub{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *smtpStub) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpStub) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpStub) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 localhost ESMTP stub")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 localhost")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, strings.TrimSpace(line[len("RCPT TO:"):]))
			s.mu.Unlock()
			write("250 OK")
		case cmd == "DATA":
			write("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, data.String())
			s.mu.Unlock()
			write("250 OK")
		case cmd == "QUIT":
			write("221 Bye")
			return
		default:
			write("250 OK")
		}
	}
}

func (s *smtpStub) received() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...), append([]string(nil), s.rcpts...)
}

func testMailConfig(port int) config.MailConfig {
	return config.MailConfig{
		Host:          "127.0.0.1",
		Port:          port,
		TLSPolicy:     "none",
		From:          "My Cool API <info@coolapi.com>",
		ActivationURL: "http://localhost:8080/#/login",
		SendTimeout:   5 * time.Second,
	}
}

func TestActivationMailer_SMTP(t *testing.T) {
	stub := newSMTPStub(t)
	cfg := testMailConfig(stub.port())

	sender := NewSMTPSender(cfg, zerolog.Nop())
	mailer := NewActivationMailer(sender, i18n.MustNew("en"), cfg.ActivationURL, cfg.SendTimeout)

	err := mailer.SendAccountActivation(context.Background(), "user1@mail.com", "0123456789abcdef", "en")
	require.NoError(t, err)

	messages, rcpts := stub.received()
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"<user1@mail.com>"}, rcpts)
	assert.Contains(t, messages[0], "Subject: Account Activation")
	assert.Contains(t, messages[0], "0123456789abcdef")
}

func TestSMTPSender_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sender := NewSMTPSender(testMailConfig(port), zerolog.Nop())
	err = sender.Send(context.Background(), Message{To: "user1@mail.com", Subject: "s", HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	sender := NewSMTPSender(testMailConfig(25), zerolog.Nop())
	err := sender.Send(context.Background(), Message{To: "not an address", Subject: "s", HTML: "x"})
	assert.ErrorIs(t, err, ErrSendFailed)
}

type captureSender struct {
	msg      Message
	deadline bool
	err      error
}

func (c *captureSender) Send(ctx context.Context, msg Message) error {
	c.msg = msg
	_, c.deadline = ctx.Deadline()
	return c.err
}

func TestActivationMailer_Render(t *testing.T) {
	capture := &captureSender{}
	mailer := NewActivationMailer(capture, i18n.MustNew("en"), "http://localhost:8080/#/login", time.Second)

	require.NoError(t, mailer.SendAccountActivation(context.Background(), "user1@mail.com", "abcdef0123456789", "bg"))

	assert.Equal(t, "user1@mail.com", capture.msg.To)
	assert.Equal(t, "Активиране на акаунт", capture.msg.Subject)
	assert.Contains(t, capture.msg.HTML, "<h2>Account Activation</h2>")
	assert.Contains(t, capture.msg.HTML, `href="http://localhost:8080/#/login?token=abcdef0123456789"`)
	assert.True(t, capture.deadline, "send must run under a deadline")
}

func TestActivationMailer_PropagatesError(t *testing.T) {
	errBoom := errors.New("boom")
	mailer := NewActivationMailer(&captureSender{err: errBoom}, i18n.MustNew("en"), "http://x", 0)

	err := mailer.SendAccountActivation(context.Background(), "user1@mail.com", "t", "en")
	assert.ErrorIs(t, err, errBoom)
}

func TestActivationLink(t *testing.T) {
	assert.Equal(t, "http://x/#/login?token=abc", ActivationLink("http://x/#/login", "abc"))
	assert.Equal(t, "http://x/activate?lang=en&token=abc", ActivationLink("http://x/activate?lang=en", "abc"))
}

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, "NoTLS", tlsPolicy("none").String())
	assert.Equal(t, "TLSOpportunistic", tlsPolicy("Opportunistic").String())
	assert.Equal(t, "TLSMandatory", tlsPolicy("mandatory").String())
}
