// users.go implements the tenant-scoped user listing.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
)

// UserHandlers handles user listing endpoints
type UserHandlers struct {
	users *repositories.UserRepository
}

// NewUserHandlers creates a UserHandlers instance.
func NewUserHandlers(users *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{users: users}
}

// @Summary      List users
// @Description  Get a paginated list of the active tenant's users. Requires the users:read permission.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Router       /api/v1/users [get]
// ListUsersHandler lists the active tenant's users with pagination
// GET /api/v1/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}
		offset := (page - 1) * perPage

		users, total, err := h.users.ListByTenant(c.Request.Context(), middleware.EffectiveTenant(c), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}
		if users == nil {
			users = []*models.User{}
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
