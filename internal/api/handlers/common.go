package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"cobrapyme/morosidad/internal/api/middleware"
	"cobrapyme/morosidad/internal/utils"
)

// currentUserID extracts the authenticated user's ID from the Gin context.
func currentUserID(c *gin.Context) (utils.SixID, error) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		return utils.SixID{}, fmt.Errorf("no authenticated user in context")
	}
	idStr, ok := raw.(string)
	if !ok {
		return utils.SixID{}, fmt.Errorf("unexpected user ID type in context")
	}
	id, err := utils.ParseSixID(idStr)
	if err != nil {
		return utils.SixID{}, fmt.Errorf("invalid user ID in context: %w", err)
	}
	return id, nil
}

// requestToday returns the calendar date all aging math in this request uses.
func requestToday() time.Time {
	return time.Now().UTC()
}
