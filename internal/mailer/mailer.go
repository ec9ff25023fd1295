// Package mailer delivers notification mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/notify"
)

// Config holds SMTP settings. An empty Host disables delivery: mail is
// logged instead.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Defaults to 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open. Defaults to 30s.
	OpenTimeout time.Duration
}

// ErrInvalidAddress is returned for a sender or recipient that is not a
// single well-formed address.
var ErrInvalidAddress = errors.New("invalid mail address")

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

var (
	_ notify.Sender = (*SMTPSender)(nil)
	_ notify.Sender = LogSender{}
)

// SMTPSender sends mail through an SMTP relay guarded by a circuit breaker.
type SMTPSender struct {
	cfg  Config
	addr string
	auth smtp.Auth
	send sendFunc
	cb   *gobreaker.CircuitBreaker[struct{}]
	lg   *zap.Logger
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg Config, lg *zap.Logger) *SMTPSender {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	s := &SMTPSender{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send: smtp.SendMail,
		lg:   lg,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	s.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return s
}

// Send implements notify.Sender. It fails fast with gobreaker.ErrOpenState
// while the relay is considered down. Malformed addresses are rejected with
// ErrInvalidAddress before the relay is contacted.
func (s *SMTPSender) Send(ctx context.Context, m notify.Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := parseAddress(s.cfg.From)
	if err != nil {
		return errors.Wrap(err, "sender")
	}
	to, err := parseAddress(m.To)
	if err != nil {
		return errors.Wrap(err, "recipient")
	}
	msg := buildMessage(from, to, m)
	_, err = s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.send(s.addr, s.auth, from.Address, []string{to.Address}, msg)
	})
	if err != nil {
		return errors.Wrapf(err, "send mail to %s", m.To)
	}
	zctx.From(ctx).Debug("Mail sent", zap.String("to", m.To), zap.String("subject", m.Subject))
	return nil
}

// LogSender writes mail to the log instead of sending it.
type LogSender struct{}

// Send implements notify.Sender.
func (LogSender) Send(ctx context.Context, m notify.Mail) error {
	zctx.From(ctx).Info("Mail delivery disabled, dropping message",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
	)
	return nil
}

// New returns an SMTPSender, or a LogSender when cfg.Host is empty.
func New(cfg Config, lg *zap.Logger) notify.Sender {
	if cfg.Host == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg, lg)
}

// parseAddress accepts exactly one RFC 5322 address without line breaks.
func parseAddress(s string) (*mail.Address, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, fmt.Errorf("%w %q: contains a line break", ErrInvalidAddress, s)
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, err)
	}
	return a, nil
}

func buildMessage(from, to *mail.Address, m notify.Mail) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.HTML)
	return b.Bytes()
}
