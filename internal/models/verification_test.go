package models

import (
	"testing"
	"time"
)

func TestVerificationCode_Status(t *testing.T) {
	now := time.Now().UTC()
	consumedAt := now.Add(-time.Minute)

	tests := []struct {
		name string
		code VerificationCode
		want CodeStatus
	}{
		{
			name: "живой код",
			code: VerificationCode{ExpiresAt: now.Add(time.Minute)},
			want: CodeStatusLive,
		},
		{
			name: "погашенный код",
			code: VerificationCode{ExpiresAt: now.Add(time.Minute), ConsumedAt: &consumedAt},
			want: CodeStatusConsumed,
		},
		{
			name: "просроченный код",
			code: VerificationCode{ExpiresAt: now.Add(-time.Second)},
			want: CodeStatusExpired,
		},
		{
			name: "срок истекает ровно сейчас",
			code: VerificationCode{ExpiresAt: now},
			want: CodeStatusExpired,
		},
		{
			name: "исчерпаны попытки",
			code: VerificationCode{ExpiresAt: now.Add(time.Minute), Attempts: MaxCodeAttempts},
			want: CodeStatusExhausted,
		},
		{
			name: "погашение важнее просрочки",
			code: VerificationCode{ExpiresAt: now.Add(-time.Minute), ConsumedAt: &consumedAt},
			want: CodeStatusConsumed,
		},
		{
			name: "просрочка важнее исчерпания",
			code: VerificationCode{ExpiresAt: now.Add(-time.Minute), Attempts: MaxCodeAttempts},
			want: CodeStatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Status(now); got != tt.want {
				t.Fatalf("ожидался статус %s, получили %s", tt.want, got)
			}
			if live := tt.code.Live(now); live != (tt.want == CodeStatusLive) {
				t.Fatalf("Live() не согласован со статусом %s", tt.want)
			}
		})
	}
}

func TestIsValidChannel(t *testing.T) {
	if !IsValidChannel(ChannelEmail) || !IsValidChannel(ChannelPhone) {
		t.Fatalf("email и phone должны быть валидными каналами")
	}
	if IsValidChannel("telegram") || IsValidChannel("") {
		t.Fatalf("прочие каналы не поддерживаются")
	}
}
