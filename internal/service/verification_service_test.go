package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abdikee/fejrul-islam-sub000/internal/models"
	"github.com/abdikee/fejrul-islam-sub000/internal/pkg/apperror"
	"github.com/abdikee/fejrul-islam-sub000/internal/repository"
)

// mockVerificationStore реализует CodeStore, AccountStore и
// repository.VerificationTx поверх карт в памяти. Мьютекс берётся в InTx
// и в обычных методах хранилища, методы транзакции работают под уже
// взятым замком — как FOR UPDATE сериализует конкурентов в Postgres.
type mockVerificationStore struct {
	mu      sync.Mutex
	records []*models.VerificationCode
	users   map[uuid.UUID]*models.User
}

func newMockVerificationStore() *mockVerificationStore {
	return &mockVerificationStore{users: make(map[uuid.UUID]*models.User)}
}

func (m *mockVerificationStore) Create(ctx context.Context, code *models.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code.ID = uuid.New()
	m.records = append(m.records, code)
	return nil
}

func (m *mockVerificationStore) CountRecent(ctx context.Context, userID uuid.UUID, channel string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.records {
		if r.UserID == userID && r.Channel == channel && !r.IssuedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockVerificationStore) CountRecentByDestination(ctx context.Context, channel, destination string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.records {
		if r.Channel == channel && r.Destination == destination && !r.IssuedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockVerificationStore) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*models.VerificationCode
	var deleted int64
	for _, r := range m.records {
		if r.ExpiresAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *mockVerificationStore) InTx(ctx context.Context, fn func(tx repository.VerificationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

func (m *mockVerificationStore) LatestLive(ctx context.Context, userID uuid.UUID, channel, destination string, now time.Time) (*models.VerificationCode, error) {
	var latest *models.VerificationCode
	for _, r := range m.records {
		if r.UserID != userID || r.Channel != channel || r.Destination != destination {
			continue
		}
		if r.ConsumedAt != nil || !r.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || r.IssuedAt.After(latest.IssuedAt) {
			latest = r
		}
	}
	return latest, nil
}

func (m *mockVerificationStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	for _, r := range m.records {
		if r.ID == id {
			r.Attempts++
			return r.Attempts, nil
		}
	}
	return 0, repository.ErrUserNotFound
}

func (m *mockVerificationStore) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	for _, r := range m.records {
		if r.ID == id && r.ConsumedAt == nil {
			consumedAt := at
			r.ConsumedAt = &consumedAt
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockVerificationStore) ConsumeAllLive(ctx context.Context, userID uuid.UUID, channel, destination string, at time.Time) (int64, error) {
	var affected int64
	for _, r := range m.records {
		if r.UserID == userID && r.Channel == channel && r.Destination == destination &&
			r.ConsumedAt == nil && r.ExpiresAt.After(at) {
			consumedAt := at
			r.ConsumedAt = &consumedAt
			affected++
		}
	}
	return affected, nil
}

func (m *mockVerificationStore) SetChannelVerified(ctx context.Context, userID uuid.UUID, channel string, verified bool) error {
	user, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if channel == models.ChannelPhone {
		user.PhoneVerified = verified
	} else {
		user.EmailVerified = verified
	}
	return nil
}

func (m *mockVerificationStore) SetPhone(ctx context.Context, userID uuid.UUID, phone string) error {
	user, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.Phone = &phone
	return nil
}

func (m *mockVerificationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockVerificationStore) PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.ID == excludeID || !user.IsActive || !user.PhoneVerified {
			continue
		}
		if user.Phone != nil && *user.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

type sentCode struct {
	channel     string
	destination string
	code        string
}

// mockSender собирает доставленные коды. Доставка идёт в фоне, поэтому
// тест ждёт её через канал.
type mockSender struct {
	deliveries chan sentCode
}

func newMockSender() *mockSender {
	return &mockSender{deliveries: make(chan sentCode, 16)}
}

func (m *mockSender) Deliver(ctx context.Context, channel, destination, code string) error {
	m.deliveries <- sentCode{channel: channel, destination: destination, code: code}
	return nil
}

func (m *mockSender) wait(t *testing.T) sentCode {
	t.Helper()
	select {
	case sent := <-m.deliveries:
		return sent
	case <-time.After(2 * time.Second):
		t.Fatalf("код не был доставлен за отведённое время")
		return sentCode{}
	}
}

func newTestUser(store *mockVerificationStore) *models.User {
	user := &models.User{
		ID:       uuid.New(),
		Email:    "student@example.com",
		Username: "student",
		Role:     "student",
		IsActive: true,
	}
	store.users[user.ID] = user
	return user
}

func TestVerificationService_IssueAndVerifyEmail(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	res, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email)
	if err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	if res.RecordID == uuid.Nil {
		t.Fatalf("идентификатор записи должен быть установлен")
	}

	sent := sender.wait(t)
	if sent.channel != models.ChannelEmail || sent.destination != user.Email {
		t.Fatalf("код ушёл не туда: %+v", sent)
	}
	if len(sent.code) != 6 || strings.Trim(sent.code, "0123456789") != "" {
		t.Fatalf("ожидался код из 6 цифр, получили %q", sent.code)
	}

	// Хэш в записи, самого кода в хранилище нет.
	if store.records[0].CodeHash == sent.code {
		t.Fatalf("код не должен храниться открытым текстом")
	}

	verifyRes, err := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, sent.code)
	if err != nil {
		t.Fatalf("проверка кода вернула ошибку: %v", err)
	}
	if verifyRes.VerifiedAt.IsZero() {
		t.Fatalf("время подтверждения должно быть установлено")
	}
	if !user.EmailVerified {
		t.Fatalf("флаг email_verified должен стать true")
	}
}

func TestVerificationService_CodeIsSingleUse(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	code := sender.wait(t).code

	if _, err := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, code); err != nil {
		t.Fatalf("первая проверка должна пройти: %v", err)
	}

	_, err := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, code)
	if !apperror.IsInvalidCode(err) {
		t.Fatalf("повторное использование кода должно вернуть invalid, получили %v", err)
	}
}

func TestVerificationService_AttemptCeiling(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	code := sender.wait(t).code

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < models.MaxCodeAttempts; i++ {
		_, err := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, wrong)
		if !apperror.IsInvalidCode(err) {
			t.Fatalf("попытка %d: ожидался invalid, получили %v", i+1, err)
		}
	}

	// Правильный код после исчерпания попыток уже не принимается.
	_, err := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, code)
	if !apperror.IsTooManyAttempts(err) {
		t.Fatalf("после %d неудач ожидался too many attempts, получили %v", models.MaxCodeAttempts, err)
	}
	if user.EmailVerified {
		t.Fatalf("флаг не должен быть установлен")
	}
}

func TestVerificationService_ExpiredCodeLooksLikeWrongCode(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	code := sender.wait(t).code

	store.records[0].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, errExpired := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, code)
	_, errNever := svc.VerifyCode(ctx, user.ID, models.ChannelEmail, "other@example.com", "123456")

	if !apperror.IsInvalidCode(errExpired) || !apperror.IsInvalidCode(errNever) {
		t.Fatalf("просроченный и несуществующий код должны давать одну ошибку: %v / %v", errExpired, errNever)
	}
	if errExpired.Error() != errNever.Error() {
		t.Fatalf("тексты ошибок должны совпадать: %q vs %q", errExpired.Error(), errNever.Error())
	}
}

func TestVerificationService_ConcurrentWrongAttempts(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	code := sender.wait(t).code

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.VerifyCode(ctx, user.ID, models.ChannelEmail, user.Email, wrong)
		}()
	}
	wg.Wait()

	// Обе попытки сериализуются: каждая видит инкремент предыдущей.
	if got := store.records[0].Attempts; got != 2 {
		t.Fatalf("ожидалось 2 попытки, получили %d", got)
	}
}

func TestVerificationService_ResendThrottle(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	for i := 0; i < maxSendsPerWindow; i++ {
		if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
			t.Fatalf("отправка %d должна пройти: %v", i+1, err)
		}
		sender.wait(t)
	}

	_, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email)
	if !apperror.IsThrottled(err) {
		t.Fatalf("четвёртая отправка за окно должна быть заблокирована, получили %v", err)
	}

	// Отправки старше окна не считаются.
	for _, r := range store.records {
		r.IssuedAt = r.IssuedAt.Add(-resendWindow - time.Minute)
	}
	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("после сдвига окна отправка должна пройти: %v", err)
	}
}

func TestVerificationService_PhoneDestinationThrottle(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	ctx := context.Background()

	phone := "+77071234567"

	// Три разных пользователя уже запросили код на один и тот же номер.
	for i := 0; i < maxSendsPerWindow; i++ {
		other := newTestUser(store)
		if _, err := svc.IssueCode(ctx, other.ID, models.ChannelPhone, phone); err != nil {
			t.Fatalf("отправка %d должна пройти: %v", i+1, err)
		}
		sender.wait(t)
	}

	victim := newTestUser(store)
	_, err := svc.IssueCode(ctx, victim.ID, models.ChannelPhone, phone)
	if !apperror.IsThrottled(err) {
		t.Fatalf("лимит по номеру должен сработать независимо от пользователя, получили %v", err)
	}
}

func TestVerificationService_PhoneTaken(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	ctx := context.Background()

	phone := "+77071234567"

	owner := newTestUser(store)
	owner.Phone = &phone
	owner.PhoneVerified = true

	user := newTestUser(store)

	_, err := svc.IssueCode(ctx, user.ID, models.ChannelPhone, phone)
	if !apperror.IsPhoneTaken(err) {
		t.Fatalf("код на чужой подтверждённый номер выдаваться не должен, получили %v", err)
	}

	available, err := svc.CheckPhoneAvailable(ctx, phone, user.ID)
	if err != nil {
		t.Fatalf("проверка занятости вернула ошибку: %v", err)
	}
	if available {
		t.Fatalf("номер должен считаться занятым")
	}

	// Для владельца его собственный номер свободен.
	available, err = svc.CheckPhoneAvailable(ctx, phone, owner.ID)
	if err != nil {
		t.Fatalf("проверка занятости вернула ошибку: %v", err)
	}
	if !available {
		t.Fatalf("собственный номер владельца должен считаться свободным")
	}
}

func TestVerificationService_ChangePhone(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	ctx := context.Background()

	oldPhone := "+77070000001"
	user := newTestUser(store)
	user.Phone = &oldPhone
	user.PhoneVerified = true

	// На старый номер выдан живой код.
	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelPhone, oldPhone); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	oldCode := sender.wait(t).code

	if err := svc.ChangePhone(ctx, user.ID, "+77070000002"); err != nil {
		t.Fatalf("смена номера вернула ошибку: %v", err)
	}

	if user.Phone == nil || *user.Phone != "+77070000002" {
		t.Fatalf("номер должен обновиться, получили %v", user.Phone)
	}
	if user.PhoneVerified {
		t.Fatalf("после смены номера phone_verified должен сброситься")
	}

	// Старый код погашен вместе со сменой номера.
	_, err := svc.VerifyCode(ctx, user.ID, models.ChannelPhone, oldPhone, oldCode)
	if !apperror.IsInvalidCode(err) {
		t.Fatalf("код на старый номер не должен приниматься, получили %v", err)
	}
}

func TestVerificationService_ChangePhoneToTakenNumber(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	ctx := context.Background()

	phone := "+77071234567"
	owner := newTestUser(store)
	owner.Phone = &phone
	owner.PhoneVerified = true

	user := newTestUser(store)

	err := svc.ChangePhone(ctx, user.ID, phone)
	if !apperror.IsPhoneTaken(err) {
		t.Fatalf("смена на занятый номер должна быть отклонена, получили %v", err)
	}
	if user.PhoneVerified {
		t.Fatalf("флаг не должен меняться при отклонённой смене")
	}
}

func TestVerificationService_InactiveUser(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	user.IsActive = false
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err == nil {
		t.Fatalf("заблокированный аккаунт не должен получать коды")
	}
}

func TestVerificationService_Status(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	user.EmailVerified = true
	ctx := context.Background()

	status, err := svc.Status(ctx, user.ID)
	if err != nil {
		t.Fatalf("статус вернул ошибку: %v", err)
	}
	if !status["email_verified"] || status["phone_verified"] {
		t.Fatalf("неожиданный статус: %v", status)
	}

	if _, err := svc.Status(ctx, uuid.New()); !apperror.IsNotFound(err) {
		t.Fatalf("статус несуществующего пользователя должен вернуть not found, получили %v", err)
	}
}

func TestCleanupService_Sweep(t *testing.T) {
	store := newMockVerificationStore()
	sender := newMockSender()
	svc := NewVerificationService(store, store, sender)
	user := newTestUser(store)
	ctx := context.Background()

	if _, err := svc.IssueCode(ctx, user.ID, models.ChannelEmail, user.Email); err != nil {
		t.Fatalf("выдача кода вернула ошибку: %v", err)
	}
	sender.wait(t)

	// Запись просрочена дольше суток.
	store.records[0].ExpiresAt = time.Now().UTC().Add(-cleanupRetention - time.Hour)

	cleanup := NewCleanupService(store, time.Hour)
	cleanup.sweep(ctx)

	if len(store.records) != 0 {
		t.Fatalf("просроченная запись должна быть удалена")
	}
}
