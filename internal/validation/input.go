package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Константы валидации
const (
	CodeLength     = 6
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

var (
	localPartRegex = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	domainRegex    = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	phoneRegex     = regexp.MustCompile(`^\+?[0-9]+$`)
	codeRegex      = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !localPartRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidatePhone проверяет номер телефона в международном формате:
// необязательный плюс и 10-15 цифр.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("номер телефона обязателен")
	}

	phone = strings.TrimSpace(phone)

	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("номер телефона может содержать только цифры и ведущий +")
	}

	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return fmt.Errorf("номер телефона должен содержать от %d до %d цифр", MinPhoneDigits, MaxPhoneDigits)
	}

	return nil
}

// NormalizePhone приводит номер к каноническому виду с ведущим плюсом.
// Под одним каноническим видом держится и проверка уникальности номера.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return phone
	}
	if !strings.HasPrefix(phone, "+") {
		return "+" + phone
	}
	return phone
}

// ValidateCode проверяет, что присланный код — строка из 6 цифр.
func ValidateCode(code string) error {
	if len(code) != CodeLength || !codeRegex.MatchString(code) {
		return fmt.Errorf("код должен состоять из %d цифр", CodeLength)
	}
	return nil
}
