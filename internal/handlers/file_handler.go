package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/storage"
	"mwork_attachments/pkg/apperrors"
)

const sniffLen = 3072

type SignedURLQuery struct {
	Path   string `form:"path" validate:"required"`
	Expiry string `form:"expiry"`
}

// FileHandler serves stored attachment variants by storage key.
type FileHandler struct {
	*BaseHandler
	storage storage.Storage
}

func NewFileHandler(base *BaseHandler, storage storage.Storage) *FileHandler {
	return &FileHandler{
		BaseHandler: base,
		storage:     storage,
	}
}

// RegisterRoutes mounts the file routes on the engine root: /files/<key>
// and /system/<key>, the prefix of the default attachment URL.
func (h *FileHandler) RegisterRoutes(r gin.IRoutes) {
	for _, prefix := range []string{"/files", "/system"} {
		r.GET(prefix+"/*path", h.ServeFile)
		r.HEAD(prefix+"/*path", h.CheckFileExists)
	}
}

func (h *FileHandler) RegisterAPIRoutes(r *gin.RouterGroup) {
	r.GET("/signed-url", h.GetSignedURL)
}

func (h *FileHandler) key(c *gin.Context) (string, bool) {
	key, err := storage.CleanKey(c.Param("path"))
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid file path"))
		return "", false
	}
	return key, true
}

// ServeFile streams a stored file. The content type is sniffed from its
// first bytes.
func (h *FileHandler) ServeFile(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	reader, err := h.storage.Get(ctx, key)
	if err != nil {
		logger.CtxDebug(ctx, "file not found", "path", key, "error", err)
		apperrors.HandleError(c, apperrors.ErrNotFound(err))
		return
	}
	defer reader.Close()

	br := bufio.NewReaderSize(reader, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		apperrors.HandleError(c, apperrors.ErrStorage("get", key, err))
		return
	}

	c.Header("Content-Type", mimetype.Detect(head).String())
	if size, err := h.storage.GetSize(ctx, key); err == nil {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
	}
	c.Header("Cache-Control", "public, max-age=31536000")
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(key)))
	} else {
		c.Header("Content-Disposition", "inline")
	}
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, br); err != nil {
		// headers are already sent
		c.Error(err)
	}
}

// CheckFileExists answers HEAD requests.
func (h *FileHandler) CheckFileExists(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}

	exists, err := h.storage.Exists(c.Request.Context(), key)
	if err != nil || !exists {
		c.Status(http.StatusNotFound)
		return
	}
	if size, err := h.storage.GetSize(c.Request.Context(), key); err == nil {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
	}
	c.Status(http.StatusOK)
}

// GetSignedURL returns a temporary URL for a stored key. Local storage
// returns its public URL.
func (h *FileHandler) GetSignedURL(c *gin.Context) {
	var q SignedURLQuery
	if !h.BindAndValidate_Query(c, &q) {
		return
	}
	key, err := storage.CleanKey(q.Path)
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid file path"))
		return
	}

	expiry, err := time.ParseDuration(q.Expiry)
	if err != nil || expiry <= 0 {
		expiry = time.Hour
	}

	exists, err := h.storage.Exists(c.Request.Context(), key)
	if err != nil {
		h.HandleServiceError(c, apperrors.ErrStorage("exists", key, err))
		return
	}
	if !exists {
		apperrors.HandleError(c, apperrors.ErrNotFound(fmt.Errorf("no file at %s", key)))
		return
	}

	signedURL, err := h.storage.GetSignedURL(c.Request.Context(), key, expiry)
	if err != nil {
		h.HandleServiceError(c, apperrors.ErrStorage("sign", key, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       signedURL,
		"expiresAt": time.Now().Add(expiry).Unix(),
	})
}
