package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/abdikee/fejrul-islam-sub000/internal/models"
)

// VerificationTx — набор операций, доступных внутри одной транзакции
// верификации. Сервис описывает свой алгоритм поверх этого интерфейса и
// не знает, каким драйвером он исполняется.
type VerificationTx interface {
	// LatestLive возвращает последнюю непогашенную и непросроченную запись
	// для (пользователь, канал, адрес) с блокировкой строки, либо nil.
	// Потолок попыток здесь намеренно не фильтруется: исчерпанная запись
	// должна быть видна сервису как отдельное состояние.
	LatestLive(ctx context.Context, userID uuid.UUID, channel, destination string, now time.Time) (*models.VerificationCode, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) error
	ConsumeAllLive(ctx context.Context, userID uuid.UUID, channel, destination string, at time.Time) (int64, error)
	SetChannelVerified(ctx context.Context, userID uuid.UUID, channel string, verified bool) error
	SetPhone(ctx context.Context, userID uuid.UUID, phone string) error
}

// VerificationRepository отвечает за таблицу verification_codes и за
// транзакционные записи в users, сопровождающие погашение кода.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository создаёт экземпляр репозитория.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create сохраняет новую запись кода (каждая отправка — новая строка).
func (r *VerificationRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (user_id, channel, destination, code_hash, attempts, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING id
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		code.UserID, code.Channel, code.Destination, code.CodeHash, code.IssuedAt, code.ExpiresAt,
	).Scan(&code.ID); err != nil {
		return fmt.Errorf("verification repository: create %w", err)
	}

	return nil
}

// CountRecent — сколько кодов отправлено пользователю по каналу за окно.
func (r *VerificationRepository) CountRecent(ctx context.Context, userID uuid.UUID, channel string, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM verification_codes
		WHERE user_id = $1 AND channel = $2 AND issued_at >= $3
	`
	if err := r.db.GetContext(ctx, &count, query, userID, channel, since); err != nil {
		return 0, fmt.Errorf("verification repository: count recent %w", err)
	}

	return count, nil
}

// CountRecentByDestination — сколько кодов ушло на конкретный адрес за
// окно, независимо от пользователя. Ограничивает использование сервиса
// как SMS-спам-реле.
func (r *VerificationRepository) CountRecentByDestination(ctx context.Context, channel, destination string, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM verification_codes
		WHERE channel = $1 AND destination = $2 AND issued_at >= $3
	`
	if err := r.db.GetContext(ctx, &count, query, channel, destination, since); err != nil {
		return 0, fmt.Errorf("verification repository: count recent by destination %w", err)
	}

	return count, nil
}

// PurgeExpiredBefore удаляет давно просроченные записи. Это фоновая
// уборка, контракт верификации на неё не опирается.
func (r *VerificationRepository) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("verification repository: purge expired %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("verification repository: purge expired rows affected %w", err)
	}

	return deleted, nil
}

// InTx выполняет fn внутри одной транзакции. Ошибка из fn откатывает
// транзакцию целиком: частичных записей не остаётся.
func (r *VerificationRepository) InTx(ctx context.Context, fn func(tx VerificationTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verification repository: begin tx %w", err)
	}
	defer tx.Rollback()

	if err := fn(&verificationTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verification repository: commit %w", err)
	}

	return nil
}

// verificationTx — реализация VerificationTx поверх sqlx.Tx.
type verificationTx struct {
	tx *sqlx.Tx
}

func (t *verificationTx) LatestLive(ctx context.Context, userID uuid.UUID, channel, destination string, now time.Time) (*models.VerificationCode, error) {
	var code models.VerificationCode
	// FOR UPDATE сериализует конкурентные попытки по одной записи:
	// вторая транзакция увидит уже обновлённые attempts/consumed_at.
	query := `
		SELECT id, user_id, channel, destination, code_hash, attempts, issued_at, expires_at, consumed_at
		FROM verification_codes
		WHERE user_id = $1 AND channel = $2 AND destination = $3
		  AND consumed_at IS NULL AND expires_at > $4
		ORDER BY issued_at DESC
		LIMIT 1
		FOR UPDATE
	`
	if err := t.tx.GetContext(ctx, &code, query, userID, channel, destination, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("verification tx: latest live %w", err)
	}

	return &code, nil
}

func (t *verificationTx) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	query := `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	if err := t.tx.QueryRowxContext(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("verification tx: increment attempts %w", err)
	}

	return attempts, nil
}

func (t *verificationTx) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("verification tx: consume %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification tx: consume rows affected %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("verification tx: запись %s уже погашена", id)
	}

	return nil
}

func (t *verificationTx) ConsumeAllLive(ctx context.Context, userID uuid.UUID, channel, destination string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed_at = $4
		WHERE user_id = $1 AND channel = $2 AND destination = $3
		  AND consumed_at IS NULL AND expires_at > $4
	`, userID, channel, destination, at)
	if err != nil {
		return 0, fmt.Errorf("verification tx: consume all live %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("verification tx: consume all live rows affected %w", err)
	}

	return affected, nil
}

func (t *verificationTx) SetChannelVerified(ctx context.Context, userID uuid.UUID, channel string, verified bool) error {
	column := "email_verified"
	if channel == models.ChannelPhone {
		column = "phone_verified"
	}

	_, err := t.tx.ExecContext(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE id = $1`,
		userID, verified,
	)
	if err != nil {
		return fmt.Errorf("verification tx: set %s %w", column, err)
	}

	return nil
}

func (t *verificationTx) SetPhone(ctx context.Context, userID uuid.UUID, phone string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE users SET phone = $2, updated_at = NOW() WHERE id = $1`,
		userID, phone,
	)
	if err != nil {
		return fmt.Errorf("verification tx: set phone %w", err)
	}

	return nil
}
