package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig はSMTPSenderの設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// UseTLS はSTARTTLSを必須にする。サーバーが広告しない場合は送信しない。
	UseTLS bool
	// UseSSL は接続開始時からTLSを使用する（SMTPS, 465番ポート）。
	UseSSL bool
}

// SMTPSender はSMTPで確認メールを直接送信する。
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendConfirmation は確認リンクを含むメールを送信する。
func (s *SMTPSender) SendConfirmation(ctx context.Context, c Confirmation) error {
	if err := s.sendMail(ctx, c.Email, buildConfirmationMessage(s.cfg.From, c)); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}
	return nil
}

// Close はSMTPSenderが接続を保持しないため何もしない。
func (s *SMTPSender) Close() error { return nil }

// buildConfirmationMessage はRFC 5322形式のメッセージを組み立てる。
func buildConfirmationMessage(from string, c Confirmation) string {
	greeting := "Hello,"
	if c.FirstName != "" {
		greeting = "Hello " + c.FirstName + ","
	}

	body := greeting + "\r\n\r\n" +
		"Please confirm your email address to complete registration.\r\n\r\n" +
		c.URL + "\r\n\r\n" +
		"This link expires in " + formatDuration(c.ExpiresIn) + ". " +
		"If you did not create an account, ignore this email."

	return "From: " + from + "\r\n" +
		"To: " + c.Email + "\r\n" +
		"Subject: Confirm your email address\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body
}

// sendMail はSMTPサーバーに接続してmsgを配送する。接続はctxのキャンセルに従う。
func (s *SMTPSender) sendMail(ctx context.Context, to, msg string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient address")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if s.cfg.UseSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if s.cfg.UseTLS && !s.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
		}
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

var _ ConfirmationSender = (*SMTPSender)(nil)
