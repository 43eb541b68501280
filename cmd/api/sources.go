package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/storage"
)

// createSourceHandler はテキストソースを登録します。
func createSourceHandler(sources storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req jobapi.CreateSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortDetail(c, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = "untitled"
		}

		src, err := sources.Save(c.Request.Context(), name, req.Content)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrEmpty):
				abortDetail(c, http.StatusBadRequest, "content must not be empty")
			case errors.Is(err, storage.ErrTooLarge):
				abortDetail(c, http.StatusRequestEntityTooLarge, err.Error())
			case errors.Is(err, storage.ErrNotText):
				abortDetail(c, http.StatusUnsupportedMediaType, err.Error())
			default:
				abortDetail(c, http.StatusInternalServerError, "failed to store source")
			}
			return
		}
		c.JSON(http.StatusCreated, src)
	}
}
