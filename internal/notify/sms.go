package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abdikee/fejrul-islam-sub000/internal/logger"
)

const mobizonSendURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

// SMSClient отправляет коды подтверждения через Mobizon.
// В dry-run режиме (или без API-ключа) запрос не выполняется, сообщение
// уходит только в лог.
type SMSClient struct {
	apiKey string
	sender string
	dryRun bool
	client *http.Client
}

type sendSMSResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

// NewSMSClient создаёт клиента Mobizon.
func NewSMSClient(apiKey, sender string, dryRun bool) *SMSClient {
	return &SMSClient{
		apiKey: apiKey,
		sender: sender,
		dryRun: dryRun,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendCode отправляет SMS с кодом подтверждения.
func (c *SMSClient) SendCode(ctx context.Context, to, code string) error {
	if c.dryRun || c.apiKey == "" {
		if logger.Log != nil {
			logger.Log.WithField("to", to).Info("sms: dry-run, сообщение не отправлено")
		}
		return nil
	}

	text := fmt.Sprintf("Код подтверждения: %s", code)

	form := url.Values{
		"apiKey":    {c.apiKey},
		"recipient": {to},
		"text":      {text},
	}
	if c.sender != "" {
		form.Set("from", c.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mobizonSendURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: запрос к Mobizon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sms: чтение ответа: %w", err)
	}

	var result sendSMSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("sms: разбор ответа: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("sms: Mobizon вернул код ошибки %d", result.Code)
	}

	return nil
}
