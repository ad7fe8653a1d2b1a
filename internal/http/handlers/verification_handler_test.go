package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/abdikee/fejrul-islam-sub000/internal/models"
	"github.com/abdikee/fejrul-islam-sub000/internal/repository"
	"github.com/abdikee/fejrul-islam-sub000/internal/service"
)

// mockAccounts реализует service.AccountStore для хэндлерных тестов.
type mockAccounts struct {
	users map[uuid.UUID]*models.User
}

func (m *mockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAccounts) PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error) {
	return false, nil
}

func authStub(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func TestVerificationHandler_SendEmailCode_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &VerificationHandler{svc: nil}
	r.POST("/verification/email/send", handler.SendEmailCode)

	req, _ := http.NewRequest("POST", "/verification/email/send", strings.NewReader(`{"email":"a@b.cd"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerificationHandler_SendEmailCode_MissingEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(authStub(uuid.New()))
	handler := &VerificationHandler{svc: nil}
	r.POST("/verification/email/send", handler.SendEmailCode)

	req, _ := http.NewRequest("POST", "/verification/email/send", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandler_Verify_BadCodeFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(authStub(uuid.New()))
	handler := &VerificationHandler{svc: nil}
	r.POST("/verification/verify", handler.Verify)

	// Код короче шести цифр отсеивается биндингом до обращения к сервису.
	body := `{"type":"email","destination":"a@b.cd","code":"123"}`
	req, _ := http.NewRequest("POST", "/verification/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandler_Verify_UnknownChannel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(authStub(uuid.New()))
	handler := &VerificationHandler{svc: nil}
	r.POST("/verification/verify", handler.Verify)

	body := `{"type":"telegram","destination":"a@b.cd","code":"123456"}`
	req, _ := http.NewRequest("POST", "/verification/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandler_Status(t *testing.T) {
	gin.SetMode(gin.TestMode)

	userID := uuid.New()
	accounts := &mockAccounts{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "a@b.cd", EmailVerified: true, IsActive: true},
	}}
	svc := service.NewVerificationService(nil, accounts, nil)

	r := gin.New()
	r.Use(authStub(userID))
	handler := NewVerificationHandler(svc)
	r.GET("/verification/status", handler.Status)

	req, _ := http.NewRequest("GET", "/verification/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email_verified":true,"phone_verified":false}`, w.Body.String())
}

func TestVerificationHandler_PhoneAvailable_MissingParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(authStub(uuid.New()))
	handler := &VerificationHandler{svc: nil}
	r.GET("/verification/phone/available", handler.PhoneAvailable)

	req, _ := http.NewRequest("GET", "/verification/phone/available", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
