package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdikee/fejrul-islam-sub000/internal/http/handlers/common"
	"github.com/abdikee/fejrul-islam-sub000/internal/repository"
)

// ProfileHandler отдаёт данные текущего пользователя для дашборда.
type ProfileHandler struct {
	users *repository.UserRepository
}

// NewProfileHandler создаёт хэндлер.
func NewProfileHandler(users *repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// GetMe GET /profile
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}
