package notify

import (
	"context"
	"fmt"

	"github.com/abdikee/fejrul-islam-sub000/internal/models"
)

// Dispatcher выбирает транспорт по каналу. Сервис верификации видит его
// через собственный интерфейс и не зависит от конкретных транспортов.
type Dispatcher struct {
	email *EmailSender
	sms   *SMSClient
}

// NewDispatcher создаёт диспетчер доставки кодов.
func NewDispatcher(email *EmailSender, sms *SMSClient) *Dispatcher {
	return &Dispatcher{email: email, sms: sms}
}

// Deliver доставляет код на указанный адрес.
func (d *Dispatcher) Deliver(ctx context.Context, channel, destination, code string) error {
	switch channel {
	case models.ChannelEmail:
		return d.email.SendCode(destination, code)
	case models.ChannelPhone:
		return d.sms.SendCode(ctx, destination, code)
	default:
		return fmt.Errorf("notify: неизвестный канал %q", channel)
	}
}
