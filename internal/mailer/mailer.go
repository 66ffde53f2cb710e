package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/pool"
)

const (
	dialTimeout    = 10 * time.Second
	commandTimeout = 30 * time.Second
)

// ErrDisabled 未配置 SMTP 地址
var ErrDisabled = errors.New("mailer disabled")

// Mailer 通过 SMTP 发送通知邮件
//
// 欢迎邮件在 worker pool 上异步发送，失败只记录日志。
type Mailer struct {
	cfg          config.MailConfig
	unlockMeters int
	pool         *pool.WorkerPool
	metrics      *monitoring.Metrics
	log          *zap.Logger
	now          func() time.Time
}

// New 创建 Mailer
func New(cfg config.MailConfig, unlockMeters float64, workers *pool.WorkerPool, metrics *monitoring.Metrics, log *zap.Logger) *Mailer {
	return &Mailer{
		cfg:          cfg,
		unlockMeters: int(unlockMeters),
		pool:         workers,
		metrics:      metrics,
		log:          log.Named("mailer"),
		now:          time.Now,
	}
}

// Enabled 是否配置了 SMTP
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPAddr != ""
}

// SendWelcome 提交欢迎邮件任务
func (m *Mailer) SendWelcome(ctx context.Context, user *domain.User) {
	if !m.Enabled() {
		return
	}
	msg := welcomeMessage(m.cfg.From, user.Email, user.Nickname, m.unlockMeters, m.now())
	task := func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), dialTimeout+commandTimeout)
		defer cancel()
		if err := m.Send(sendCtx, msg); err != nil {
			m.metrics.RecordMailSent("failed")
			m.log.Warn("Failed to send welcome email", zap.String("user_id", user.ID), zap.Error(err))
			return
		}
		m.metrics.RecordMailSent("sent")
		m.log.Info("Welcome email sent", zap.String("user_id", user.ID))
	}
	if m.pool == nil {
		go task()
		return
	}
	if !m.pool.TrySubmit(task) {
		m.metrics.RecordMailSent("dropped")
		m.log.Warn("Mail queue full, welcome email dropped", zap.String("user_id", user.ID))
	}
}

// Send 同步发送一封邮件
func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.SMTPAddr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := gosmtp.NewClient(conn)
	c.CommandTimeout = commandTimeout
	defer c.Close()

	if m.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return c.Quit()
}
