package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/abdikee/fejrul-islam-sub000/internal/goroutine"
	"github.com/abdikee/fejrul-islam-sub000/internal/logger"
	"github.com/abdikee/fejrul-islam-sub000/internal/models"
	"github.com/abdikee/fejrul-islam-sub000/internal/pkg/apperror"
	"github.com/abdikee/fejrul-islam-sub000/internal/repository"
	"github.com/abdikee/fejrul-islam-sub000/internal/validation"
)

// Политика выдачи кодов. Окна жизни различаются по каналам: SMS-коды
// считаются более рискованными и живут короче.
const (
	codeLength        = 6
	emailCodeTTL      = 10 * time.Minute
	phoneCodeTTL      = 5 * time.Minute
	resendWindow      = 15 * time.Minute
	maxSendsPerWindow = 3
	deliveryTimeout   = 15 * time.Second
)

// CodeStore описывает зависимости сервиса от хранилища кодов.
type CodeStore interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	CountRecent(ctx context.Context, userID uuid.UUID, channel string, since time.Time) (int, error)
	CountRecentByDestination(ctx context.Context, channel, destination string, since time.Time) (int, error)
	PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	InTx(ctx context.Context, fn func(tx repository.VerificationTx) error) error
}

// AccountStore описывает зависимости сервиса от хранилища пользователей.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error)
}

// CodeSender доставляет код на адрес. Транспорт — внешняя граница:
// сбой доставки не влияет на состояние верификации.
type CodeSender interface {
	Deliver(ctx context.Context, channel, destination, code string) error
}

// EventBroadcaster отправляет событие подключённым клиентам пользователя.
type EventBroadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// VerificationService реализует подтверждение владения email и телефоном
// через одноразовые коды.
type VerificationService struct {
	codes    CodeStore
	accounts AccountStore
	sender   CodeSender
	events   EventBroadcaster
}

// NewVerificationService создаёт сервис верификации.
func NewVerificationService(codes CodeStore, accounts AccountStore, sender CodeSender) *VerificationService {
	return &VerificationService{
		codes:    codes,
		accounts: accounts,
		sender:   sender,
	}
}

// SetEvents подключает отправку событий в дашборд (опционально).
func (s *VerificationService) SetEvents(events EventBroadcaster) {
	s.events = events
}

// IssueResult возвращается после выдачи кода. Сам код сюда не попадает
// никогда: он уходит пользователю только через канал доставки.
type IssueResult struct {
	RecordID  uuid.UUID `json:"record_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResult возвращается после успешного подтверждения.
type VerifyResult struct {
	VerifiedAt time.Time `json:"verified_at"`
}

// IssueCode выдаёт новый код для (пользователь, канал, адрес): проверяет
// троттлинг, сохраняет запись и запускает доставку после фиксации.
func (s *VerificationService) IssueCode(ctx context.Context, userID uuid.UUID, channel, destination string) (*IssueResult, error) {
	destination, err := s.checkDestination(channel, destination)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Защитная проверка занятости номера до выдачи кода: нет смысла
	// слать код на номер, который нельзя будет подтвердить.
	if channel == models.ChannelPhone {
		inUse, err := s.accounts.PhoneInUse(ctx, destination, user.ID)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, apperror.ErrPhoneTaken
		}
	}

	now := time.Now().UTC()
	since := now.Add(-resendWindow)

	sent, err := s.codes.CountRecent(ctx, userID, channel, since)
	if err != nil {
		return nil, err
	}
	if sent >= maxSendsPerWindow {
		return nil, apperror.ErrThrottled
	}

	// Для телефона дополнительно ограничиваем отправки на сам номер,
	// независимо от того, кто их запрашивал.
	// TODO: решить с продуктом, нужен ли такой же лимит по адресу для email.
	if channel == models.ChannelPhone {
		sentTo, err := s.codes.CountRecentByDestination(ctx, channel, destination, since)
		if err != nil {
			return nil, err
		}
		if sentTo >= maxSendsPerWindow {
			return nil, apperror.ErrThrottled
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("verification service: не удалось сгенерировать код: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("verification service: не удалось захешировать код: %w", err)
	}

	record := &models.VerificationCode{
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		CodeHash:    string(hash),
		IssuedAt:    now,
		ExpiresAt:   now.Add(codeTTL(channel)),
	}

	if err := s.codes.Create(ctx, record); err != nil {
		return nil, err
	}

	// Доставка запускается после сохранения записи и не связана с ней
	// транзакцией: упавшая доставка не откатывает выданный код. Контекст
	// запроса к этому моменту может быть уже отменён, поэтому берём свой.
	s.deliverAsync(record, code)

	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id":   userID,
			"channel":   channel,
			"record_id": record.ID,
		}).Info("verification: код выдан")
	}

	return &IssueResult{RecordID: record.ID, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyCode сверяет присланный код с последней живой записью. Сравнение,
// инкремент попыток и погашение с установкой флага происходят в одной
// транзакции над заблокированной строкой.
func (s *VerificationService) VerifyCode(ctx context.Context, userID uuid.UUID, channel, destination, submitted string) (*VerifyResult, error) {
	destination, err := s.checkDestination(channel, destination)
	if err != nil {
		return nil, err
	}

	// Код неверного формата заведомо не совпадёт, отвечаем тем же самым
	// кодом ошибки без обращения к записи.
	if err := validation.ValidateCode(submitted); err != nil {
		return nil, apperror.ErrInvalidCode
	}

	now := time.Now().UTC()

	var (
		result  *VerifyResult
		outcome *apperror.AppError
	)

	err = s.codes.InTx(ctx, func(tx repository.VerificationTx) error {
		record, err := tx.LatestLive(ctx, userID, channel, destination, now)
		if err != nil {
			return err
		}

		// Ответ одинаков для "кода не было", "код просрочен" и "код не
		// совпал": по нему нельзя понять, какой случай произошёл.
		if record == nil {
			outcome = apperror.ErrInvalidCode
			return nil
		}

		// Потолок попыток проверяется до сравнения и отдельно от срока.
		if record.Attempts >= models.MaxCodeAttempts {
			outcome = apperror.ErrTooManyAttempts
			return nil
		}

		if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(submitted)) != nil {
			// Возвращаем nil, чтобы инкремент попытки зафиксировался.
			if _, err := tx.IncrementAttempts(ctx, record.ID); err != nil {
				return err
			}
			outcome = apperror.ErrInvalidCode
			return nil
		}

		// Погашение кода и установка флага — единая транзакция: эти два
		// изменения никогда не наблюдаются порознь.
		if err := tx.Consume(ctx, record.ID, now); err != nil {
			return err
		}
		if err := tx.SetChannelVerified(ctx, userID, channel, true); err != nil {
			return err
		}

		result = &VerifyResult{VerifiedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}

	if s.events != nil {
		event := models.ChannelEmail + "_verified"
		if channel == models.ChannelPhone {
			event = models.ChannelPhone + "_verified"
		}
		_ = s.events.BroadcastToUser(userID, event, map[string]any{
			"channel":     channel,
			"verified_at": now,
		})
	}

	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": userID,
			"channel": channel,
		}).Info("verification: канал подтверждён")
	}

	return result, nil
}

// CheckPhoneAvailable сообщает, свободен ли номер: не подтверждён ли он
// уже у другого активного аккаунта.
func (s *VerificationService) CheckPhoneAvailable(ctx context.Context, phone string, excludeUserID uuid.UUID) (bool, error) {
	if err := validation.ValidatePhone(phone); err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	inUse, err := s.accounts.PhoneInUse(ctx, validation.NormalizePhone(phone), excludeUserID)
	if err != nil {
		return false, err
	}

	return !inUse, nil
}

// ChangePhone меняет номер пользователя. Единственный путь, сбрасывающий
// phone_verified в false; живые коды на старый номер гасятся, чтобы их
// нельзя было подтвердить после смены.
func (s *VerificationService) ChangePhone(ctx context.Context, userID uuid.UUID, newPhone string) error {
	if err := validation.ValidatePhone(newPhone); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	newPhone = validation.NormalizePhone(newPhone)

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}

	inUse, err := s.accounts.PhoneInUse(ctx, newPhone, userID)
	if err != nil {
		return err
	}
	if inUse {
		return apperror.ErrPhoneTaken
	}

	now := time.Now().UTC()

	err = s.codes.InTx(ctx, func(tx repository.VerificationTx) error {
		if err := tx.SetPhone(ctx, userID, newPhone); err != nil {
			return err
		}
		if err := tx.SetChannelVerified(ctx, userID, models.ChannelPhone, false); err != nil {
			return err
		}
		if user.Phone != nil && *user.Phone != "" {
			if _, err := tx.ConsumeAllLive(ctx, userID, models.ChannelPhone, *user.Phone, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logger.Log != nil {
		logger.Log.WithField("user_id", userID).Info("verification: номер телефона изменён, требуется повторное подтверждение")
	}

	return nil
}

// Status возвращает текущие флаги верификации пользователя.
func (s *VerificationService) Status(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, err
	}

	return map[string]bool{
		"email_verified": user.EmailVerified,
		"phone_verified": user.PhoneVerified,
	}, nil
}

// checkDestination валидирует канал и адрес; телефон нормализуется.
func (s *VerificationService) checkDestination(channel, destination string) (string, error) {
	if !models.IsValidChannel(channel) {
		return "", apperror.New(apperror.ErrCodeValidation, "неизвестный канал подтверждения")
	}

	switch channel {
	case models.ChannelEmail:
		if err := validation.ValidateEmail(destination); err != nil {
			return "", apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	case models.ChannelPhone:
		if err := validation.ValidatePhone(destination); err != nil {
			return "", apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		destination = validation.NormalizePhone(destination)
	}

	return destination, nil
}

// activeUser возвращает пользователя, если он существует и не заблокирован.
func (s *VerificationService) activeUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "аккаунт заблокирован")
	}

	return user, nil
}

// deliverAsync отправляет код получателю в фоне.
func (s *VerificationService) deliverAsync(record *models.VerificationCode, code string) {
	channel := record.Channel
	destination := record.Destination
	recordID := record.ID
	userID := record.UserID

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := s.sender.Deliver(ctx, channel, destination, code); err != nil && logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id":   userID,
				"channel":   channel,
				"record_id": recordID,
				"error":     err.Error(),
			}).Warn("verification: не удалось доставить код")
		}
	})
}

// codeTTL возвращает окно жизни кода для канала.
func codeTTL(channel string) time.Duration {
	if channel == models.ChannelPhone {
		return phoneCodeTTL
	}
	return emailCodeTTL
}

// generateCode выдаёт криптослучайный код из 6 цифр.
func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeLength, n), nil
}
