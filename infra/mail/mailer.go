// Package mail delivers DSF bundles and reminders over SMTP with go-mail.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/kilianp07/ndf/config"
	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/logger"
)

// ErrDisabled is returned by Send when no SMTP host is configured.
var ErrDisabled = errors.New("mail delivery disabled")

// TokenSource supplies XOAUTH2 access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Mailer sends messages through one SMTP relay.
type Mailer struct {
	cfg      config.MailConfig
	authType gomail.SMTPAuthType
	tls      gomail.TLSPolicy
	tokens   TokenSource
	log      logger.Logger

	// deliver is replaced in tests.
	deliver func(ctx context.Context, c *gomail.Client, m *gomail.Msg) error
}

// New validates cfg. tokens is required when cfg.Auth is xoauth2.
func New(cfg config.MailConfig, tokens TokenSource, log logger.Logger) (*Mailer, error) {
	var at gomail.SMTPAuthType
	if err := at.UnmarshalString(cfg.Auth); err != nil {
		return nil, err
	}
	if at == gomail.SMTPAuthXOAUTH2 && tokens == nil {
		return nil, fmt.Errorf("xoauth2 requires a token source")
	}
	var policy gomail.TLSPolicy
	switch cfg.TLS {
	case "none":
		policy = gomail.NoTLS
	case "opportunistic":
		policy = gomail.TLSOpportunistic
	default:
		policy = gomail.TLSMandatory
	}
	return &Mailer{
		cfg:      cfg,
		authType: at,
		tls:      policy,
		tokens:   tokens,
		log:      log,
		deliver: func(ctx context.Context, c *gomail.Client, m *gomail.Msg) error {
			return c.DialAndSendWithContext(ctx, m)
		},
	}, nil
}

// Send delivers m. A message without PDF bytes is sent without attachment.
func (s *Mailer) Send(ctx context.Context, m dsf.Message) error {
	if !s.cfg.Enabled() {
		return ErrDisabled
	}
	msg, err := s.message(m)
	if err != nil {
		return err
	}
	client, err := s.client(ctx)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, client, msg); err != nil {
		// a refused token is retried with a fresh one on the next attempt
		if inv, ok := s.tokens.(interface{ Invalidate() }); ok && s.authType == gomail.SMTPAuthXOAUTH2 {
			inv.Invalidate()
		}
		return fmt.Errorf("smtp send to %v: %w", m.To, err)
	}
	s.log.Infof("mail %q sent to %d recipient(s)", m.Subject, len(m.To))
	return nil
}

func (s *Mailer) message(m dsf.Message) (*gomail.Msg, error) {
	if len(m.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	if len(m.Attachment.PDF) > 0 {
		err := msg.AttachReader(m.Attachment.Filename, bytes.NewReader(m.Attachment.PDF),
			gomail.WithFileContentType(gomail.ContentType("application/pdf")))
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", m.Attachment.Filename, err)
		}
	}
	return msg, nil
}

func (s *Mailer) client(ctx context.Context) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.cfg.Timeout()),
		gomail.WithTLSPolicy(s.tls),
	}
	if s.authType != gomail.SMTPAuthNoAuth {
		password := s.cfg.Password
		if s.authType == gomail.SMTPAuthXOAUTH2 {
			tok, err := s.tokens.Token(ctx)
			if err != nil {
				return nil, fmt.Errorf("xoauth2 token: %w", err)
			}
			password = tok
		}
		opts = append(opts,
			gomail.WithSMTPAuth(s.authType),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(password),
		)
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

var _ dsf.Mailer = (*Mailer)(nil)
