package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeThrottled       ErrorCode = "THROTTLED"
	ErrCodeInvalidCode     ErrorCode = "INVALID_OR_EXPIRED_CODE"
	ErrCodeTooManyAttempts ErrorCode = "TOO_MANY_ATTEMPTS"
	ErrCodePhoneTaken      ErrorCode = "PHONE_TAKEN"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidCode:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodePhoneTaken:
		return http.StatusConflict
	case ErrCodeThrottled, ErrCodeTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsThrottled(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeThrottled
}

func IsInvalidCode(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidCode
}

func IsTooManyAttempts(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeTooManyAttempts
}

func IsPhoneTaken(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodePhoneTaken
}

// Ожидаемые исходы верификации. Все четыре — пользовательские состояния,
// а не сбои процесса: обработчики возвращают их клиенту как есть.
// Сообщение для неверного и просроченного кода намеренно одно и то же,
// чтобы по ответу нельзя было понять, какой из случаев произошёл.
var (
	ErrUserNotFound    = New(ErrCodeNotFound, "пользователь не найден")
	ErrThrottled       = New(ErrCodeThrottled, "код запрашивался слишком часто, подождите перед повторной отправкой")
	ErrInvalidCode     = New(ErrCodeInvalidCode, "неверный или просроченный код")
	ErrTooManyAttempts = New(ErrCodeTooManyAttempts, "превышено число попыток, запросите новый код")
	ErrPhoneTaken      = New(ErrCodePhoneTaken, "номер телефона уже подтверждён другим аккаунтом")
	ErrUnauthorized    = New(ErrCodeUnauthorized, "требуется авторизация")
)
