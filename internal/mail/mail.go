// Package mail delivers account e-mails over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/i18n"
)

//go:embed templates/*.html
var templatesFS embed.FS

var activationTemplate = template.Must(template.ParseFS(templatesFS, "templates/activation.html"))

// ErrSendFailed indicates the transport did not accept the message.
var ErrSendFailed = errors.New("mail delivery failed")

// Message is a single outgoing HTML e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender implements Sender with go-mail.
type SMTPSender struct {
	cfg    config.MailConfig
	logger zerolog.Logger
}

// NewSMTPSender creates a new SMTP sender.
func NewSMTPSender(cfg config.MailConfig, logger zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With().Str("component", "smtp").Logger(),
	}
}

// Send dials the server and delivers msg. The dial honors ctx.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("%w: invalid from address: %v", ErrSendFailed, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%w: invalid recipient: %v", ErrSendFailed, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Warn().Err(err).Str("host", s.cfg.Host).Int("port", s.cfg.Port).Msg("smtp delivery failed")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Debug().Dur("duration", time.Since(start)).Msg("smtp message delivered")
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy(s.cfg.TLSPolicy)),
	}
	if s.cfg.SendTimeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.cfg.SendTimeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthAutoDiscover),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func tlsPolicy(policy string) gomail.TLSPolicy {
	switch strings.ToLower(policy) {
	case "mandatory":
		return gomail.TLSMandatory
	case "opportunistic":
		return gomail.TLSOpportunistic
	default:
		return gomail.NoTLS
	}
}

// Ensure SMTPSender implements Sender.
var _ Sender = (*SMTPSender)(nil)

// ActivationMailer renders and sends account activation e-mails.
type ActivationMailer struct {
	sender        Sender
	translator    *i18n.Translator
	activationURL string
	timeout       time.Duration
}

// NewActivationMailer creates an ActivationMailer.
// A zero timeout leaves the caller's deadline in charge.
func NewActivationMailer(sender Sender, translator *i18n.Translator, activationURL string, timeout time.Duration) *ActivationMailer {
	return &ActivationMailer{
		sender:        sender,
		translator:    translator,
		activationURL: activationURL,
		timeout:       timeout,
	}
}

// SendAccountActivation mails the activation link for token to the given address.
// The subject is localized for lang.
func (a *ActivationMailer) SendAccountActivation(ctx context.Context, to, token, lang string) error {
	body, err := a.render(token)
	if err != nil {
		return err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	return a.sender.Send(ctx, Message{
		To:      to,
		Subject: a.translator.Localizer(lang).T("activation_email_subject"),
		HTML:    body,
	})
}

func (a *ActivationMailer) render(token string) (string, error) {
	var buf bytes.Buffer
	if err := activationTemplate.Execute(&buf, struct{ Link string }{Link: ActivationLink(a.activationURL, token)}); err != nil {
		return "", fmt.Errorf("failed to render activation e-mail: %w", err)
	}
	return buf.String(), nil
}

// ActivationLink appends the token query parameter to base.
func ActivationLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
