package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/services"
	"mwork_attachments/internal/services/dto"
	"mwork_attachments/pkg/apperrors"
)

const maxMultipartMemory = 32 << 20

// EntityRequest is the JSON form of a create or update.
type EntityRequest struct {
	Attributes map[string]interface{} `json:"attributes" validate:"required"`
}

type ListQuery struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

type EntityHandler struct {
	*BaseHandler
	entityService services.EntityService
}

func NewEntityHandler(base *BaseHandler, entityService services.EntityService) *EntityHandler {
	return &EntityHandler{
		BaseHandler:   base,
		entityService: entityService,
	}
}

func (h *EntityHandler) RegisterRoutes(r *gin.RouterGroup) {
	entities := r.Group("/entities/:kind")
	{
		entities.POST("", h.Create)
		entities.GET("", h.List)
		entities.GET("/:id", h.Get)
		entities.PATCH("/:id", h.Update)
		entities.DELETE("/:id", h.Delete)
		entities.POST("/:id/attachments/:name/reprocess", h.Reprocess)
	}
}

// Create accepts multipart/form-data (text fields plus files) or a JSON
// EntityRequest.
func (h *EntityHandler) Create(c *gin.Context) {
	kind := c.Param("kind")
	fields, ok := h.readFields(c, kind)
	if !ok {
		return
	}

	resp, err := h.entityService.Create(c.Request.Context(), h.GetDB(c), kind, fields)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *EntityHandler) Get(c *gin.Context) {
	resp, err := h.entityService.Get(c.Request.Context(), h.GetDB(c), c.Param("kind"), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *EntityHandler) List(c *gin.Context) {
	var q ListQuery
	if !h.BindAndValidate_Query(c, &q) {
		return
	}
	resp, err := h.entityService.List(c.Request.Context(), h.GetDB(c), c.Param("kind"), q.Limit, q.Offset)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update writes the given attributes. Sending the delete sentinel as an
// attachment's value removes the stored file.
func (h *EntityHandler) Update(c *gin.Context) {
	kind := c.Param("kind")
	fields, ok := h.readFields(c, kind)
	if !ok {
		return
	}

	resp, err := h.entityService.Update(c.Request.Context(), h.GetDB(c), kind, c.Param("id"), fields)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *EntityHandler) Delete(c *gin.Context) {
	if err := h.entityService.Delete(c.Request.Context(), h.GetDB(c), c.Param("kind"), c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EntityHandler) Reprocess(c *gin.Context) {
	resp, err := h.entityService.Reprocess(c.Request.Context(), h.GetDB(c), c.Param("kind"), c.Param("id"), c.Param("name"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// readFields turns the request body into ordered attribute writes. Text
// values come before files, each group sorted by key, so a file sent
// alongside the sentinel for the same attachment wins.
func (h *EntityHandler) readFields(c *gin.Context, kind string) ([]dto.Field, bool) {
	names, err := h.entityService.AttachmentNames(kind)
	if err != nil {
		h.HandleServiceError(c, err)
		return nil, false
	}
	attachments := make(map[string]bool, len(names))
	for _, n := range names {
		attachments[n] = true
	}

	var values map[string]interface{}
	var files map[string]*multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
			logger.CtxWithError(c.Request.Context(), "failed to parse multipart form", err)
			apperrors.HandleError(c, apperrors.NewBadRequestError("failed to parse form: "+err.Error()))
			return nil, false
		}
		form := c.Request.MultipartForm
		values = make(map[string]interface{}, len(form.Value))
		for key, vs := range form.Value {
			if len(vs) > 0 {
				values[key] = vs[len(vs)-1]
			}
		}
		files = make(map[string]*multipart.FileHeader, len(form.File))
		for key, fhs := range form.File {
			if !attachments[key] {
				apperrors.HandleError(c, apperrors.NewBadRequestError(fmt.Sprintf("%q is not an attachment of %s", key, kind)))
				return nil, false
			}
			if len(fhs) > 0 {
				files[key] = fhs[len(fhs)-1]
			}
		}
	} else {
		var req EntityRequest
		if !h.BindAndValidate_JSON(c, &req) {
			return nil, false
		}
		values = req.Attributes
	}

	fields := make([]dto.Field, 0, len(values)+len(files))
	for _, key := range sortedKeys(values) {
		v := values[key]
		if attachments[key] && !h.acceptableAttachmentValue(v) {
			apperrors.HandleError(c, apperrors.NewBadRequestError(
				fmt.Sprintf("%q takes a file upload, an http(s) URL or the delete sentinel", key)))
			return nil, false
		}
		fields = append(fields, dto.Field{Key: key, Value: v})
	}
	for _, key := range sortedKeys(files) {
		fields = append(fields, dto.Field{Key: key, Value: files[key]})
	}
	return fields, true
}

// acceptableAttachmentValue rejects strings that would be read as server
// side file paths.
func (h *EntityHandler) acceptableAttachmentValue(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return v == nil
	}
	return s == "" ||
		s == h.entityService.DeleteSentinel() ||
		strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
