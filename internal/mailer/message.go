package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"
)

const welcomeSubject = "置き手紙へようこそ"

const welcomeBody = `%s さん

置き手紙へのご登録ありがとうございます。

街を歩いて、誰かが残した手紙を見つけてみてください。
手紙の近く（%d メートル以内）まで行くと開封できます。
あなたも好きな場所に手紙を置くことができます。

置き手紙
`

// Message 一封纯文本邮件
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// welcomeMessage 欢迎邮件
func welcomeMessage(from, to, nickname string, unlockMeters int, now time.Time) *Message {
	return &Message{
		From:    from,
		To:      to,
		Subject: welcomeSubject,
		Body:    fmt.Sprintf(welcomeBody, nickname, unlockMeters),
		Date:    now,
	}
}

// Bytes 编码为 RFC 5322 报文，标题用 B 编码，正文用 quoted-printable
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	domain := "localhost"
	if at := strings.LastIndex(m.From, "@"); at >= 0 {
		domain = m.From[at+1:]
	}

	headers := []struct{ key, value string }{
		{"From", m.From},
		{"To", m.To},
		{"Subject", mime.BEncoding.Encode("UTF-8", m.Subject)},
		{"Date", m.Date.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="UTF-8"`},
		{"Content-Transfer-Encoding", "quoted-printable"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.key, h.value)
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(strings.ReplaceAll(m.Body, "\n", "\r\n"))); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}
