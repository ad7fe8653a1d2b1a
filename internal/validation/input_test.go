package validation

import "testing"

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"user.name+tag@sub.example.org",
		"Student@Example.COM",
	}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Fatalf("email %q должен быть валидным: %v", email, err)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"two@@example.com",
		"user@",
		"@example.com",
		"user@nodot",
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Fatalf("email %q должен быть отклонён", email)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	valid := []string{
		"+77071234567",
		"77071234567",
		"+123456789012345",
	}
	for _, phone := range valid {
		if err := ValidatePhone(phone); err != nil {
			t.Fatalf("номер %q должен быть валидным: %v", phone, err)
		}
	}

	invalid := []string{
		"",
		"12345",
		"+7707123456x",
		"+1234567890123456",
		"7707 123 45 67",
	}
	for _, phone := range invalid {
		if err := ValidatePhone(phone); err == nil {
			t.Fatalf("номер %q должен быть отклонён", phone)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("77071234567"); got != "+77071234567" {
		t.Fatalf("ожидался +77071234567, получили %q", got)
	}
	if got := NormalizePhone("+77071234567"); got != "+77071234567" {
		t.Fatalf("плюс не должен дублироваться, получили %q", got)
	}
	if got := NormalizePhone("  77071234567 "); got != "+77071234567" {
		t.Fatalf("пробелы должны обрезаться, получили %q", got)
	}
}

func TestValidateCode(t *testing.T) {
	if err := ValidateCode("123456"); err != nil {
		t.Fatalf("код из 6 цифр должен быть валидным: %v", err)
	}
	if err := ValidateCode("000000"); err != nil {
		t.Fatalf("ведущие нули допустимы: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12345a", "12 456"} {
		if err := ValidateCode(code); err == nil {
			t.Fatalf("код %q должен быть отклонён", code)
		}
	}
}
