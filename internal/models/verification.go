package models

import (
	"time"

	"github.com/google/uuid"
)

// Каналы подтверждения.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// MaxCodeAttempts — потолок неудачных попыток ввода кода. После его
// достижения запись считается исчерпанной, даже если срок ещё не вышел.
const MaxCodeAttempts = 3

// IsValidChannel сообщает, поддерживается ли канал.
func IsValidChannel(channel string) bool {
	return channel == ChannelEmail || channel == ChannelPhone
}

// CodeStatus — производный статус записи кода.
type CodeStatus string

const (
	CodeStatusLive      CodeStatus = "live"
	CodeStatusConsumed  CodeStatus = "consumed"
	CodeStatusExpired   CodeStatus = "expired"
	CodeStatusExhausted CodeStatus = "exhausted"
)

// VerificationCode — одна отправка кода подтверждения.
// Destination фиксирует адрес/номер на момент отправки, а не читается из
// записи пользователя: смена контакта не трогает уже отправленные коды.
// Сам код храним только в виде bcrypt-хэша.
type VerificationCode struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Channel     string     `db:"channel" json:"channel"`
	Destination string     `db:"destination" json:"destination"`
	CodeHash    string     `db:"code_hash" json:"-"`
	Attempts    int        `db:"attempts" json:"attempts"`
	IssuedAt    time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt  *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}

// Status выводит статус записи из хранимых полей. Порядок проверок важен:
// погашение необратимо, истечение срока проверяется раньше потолка попыток.
func (c *VerificationCode) Status(now time.Time) CodeStatus {
	switch {
	case c.ConsumedAt != nil:
		return CodeStatusConsumed
	case !now.Before(c.ExpiresAt):
		return CodeStatusExpired
	case c.Attempts >= MaxCodeAttempts:
		return CodeStatusExhausted
	default:
		return CodeStatusLive
	}
}

// Live — запись не погашена, не просрочена и не исчерпана по попыткам.
func (c *VerificationCode) Live(now time.Time) bool {
	return c.Status(now) == CodeStatusLive
}
