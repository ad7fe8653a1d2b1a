package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdikee/fejrul-islam-sub000/internal/http/handlers/common"
	"github.com/abdikee/fejrul-islam-sub000/internal/models"
	"github.com/abdikee/fejrul-islam-sub000/internal/service"
)

// VerificationHandler — HTTP-обёртка над сервисом верификации.
type VerificationHandler struct {
	svc *service.VerificationService
}

// NewVerificationHandler создаёт хэндлер.
func NewVerificationHandler(s *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{svc: s}
}

// SendEmailCode POST /verification/email/send
func (h *VerificationHandler) SendEmailCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.svc.IssueCode(c.Request.Context(), userID, models.ChannelEmail, req.Email)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	// Код в ответ не попадает: только идентификатор записи и срок.
	c.JSON(http.StatusOK, res)
}

// SendPhoneCode POST /verification/phone/send
func (h *VerificationHandler) SendPhoneCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.svc.IssueCode(c.Request.Context(), userID, models.ChannelPhone, req.Phone)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Verify POST /verification/verify
func (h *VerificationHandler) Verify(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Type        string `json:"type" binding:"required,oneof=email phone"`
		Destination string `json:"destination" binding:"required"`
		Code        string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	res, err := h.svc.VerifyCode(c.Request.Context(), userID, req.Type, req.Destination, req.Code)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Status GET /verification/status
func (h *VerificationHandler) Status(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	status, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// PhoneAvailable GET /verification/phone/available?phone=...
func (h *VerificationHandler) PhoneAvailable(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	phone := c.Query("phone")
	if phone == "" {
		common.RespondBadRequest(c, "параметр phone обязателен")
		return
	}

	available, err := h.svc.CheckPhoneAvailable(c.Request.Context(), phone, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": available})
}

// ChangePhone POST /verification/phone/change
func (h *VerificationHandler) ChangePhone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.ChangePhone(c.Request.Context(), userID, req.Phone); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "номер изменён, подтвердите его заново"})
}
