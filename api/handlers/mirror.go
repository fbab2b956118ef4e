package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/customeros/mailmirror/api/errors"
	"github.com/customeros/mailmirror/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func ListFolders(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		folders, err := repos.FolderRepository.ListByAccount(c.Request.Context(), c.Param("account"))
		if err != nil {
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"folders": folders})
	}
}

func ListMessages(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		folder := c.Query("folder")
		if folder == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "folder is required"})
			return
		}
		limit := queryInt(c, "limit", defaultListLimit)
		if limit <= 0 || limit > maxListLimit {
			limit = defaultListLimit
		}
		offset := queryInt(c, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		messages, total, err := repos.MessageRepository.ListByFolder(c.Request.Context(), c.Param("account"), folder, limit, offset)
		if err != nil {
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages, "total": total})
	}
}

func GetMessageBody(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := repos.MessageBodyRepository.GetByID(c.Request.Context(), c.Param("account"), c.Param("id"))
		if err != nil {
			c.JSON(apierrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		if body == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "body not cached"})
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
