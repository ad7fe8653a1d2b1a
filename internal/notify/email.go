package notify

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// EmailSender отправляет коды подтверждения по SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailSender создаёт SMTP-отправителя.
func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

// SendCode отправляет письмо с кодом подтверждения.
func (s *EmailSender) SendCode(to, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Код подтверждения")

	body := fmt.Sprintf(`
		<h3>Подтверждение адреса электронной почты</h3>
		<p>Ваш код подтверждения: <strong>%s</strong></p>
		<p>Код действует 10 минут. Если вы не запрашивали подтверждение, просто проигнорируйте это письмо.</p>
	`, code)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: не удалось отправить письмо: %w", err)
	}

	return nil
}
