// Package mail はサインアップ時のメールアドレス確認の配送を提供する。
// 配送方式はSMTP直接送信、AMQPイベント発行、無効（Nop）から設定で選択する。
package mail

import (
	"context"
	"fmt"
	"time"
)

// Confirmation は確認メール1通分の内容。
type Confirmation struct {
	UserID    string
	Email     string
	FirstName string
	// URL は確認トークンを含む確認用リンク。
	URL       string
	ExpiresIn time.Duration
}

// ConfirmationSender は確認メールを配送する。
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, c Confirmation) error
	Close() error
}

// NopSender はすべての確認メールを破棄する。MAIL_TRANSPORT=none で使用する。
type NopSender struct{}

func (NopSender) SendConfirmation(context.Context, Confirmation) error { return nil }
func (NopSender) Close() error                                         { return nil }

// formatDuration は有効期限を人が読める形式にする。
// 例: time.Hour → "1 hour", 72*time.Hour → "3 days"
func formatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
}

var _ ConfirmationSender = NopSender{}
