package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/file"
	"evalforge/pkg/response"
)

// UploadFile stores the uploaded bytes in the blob store and records
// metadata.
func (h *Handlers) UploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "File is required", err.Error())
		return
	}

	opened, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "Failed to read upload", err.Error())
		return
	}
	defer opened.Close()

	data, err := io.ReadAll(opened)
	if err != nil {
		response.BadRequest(c, "Failed to read upload", err.Error())
		return
	}

	storagePath, err := h.store.Save(c.Request.Context(), data, fileHeader.Filename)
	if err != nil {
		h.logger.Error("Failed to store file", "error", err)
		response.InternalServerError(c, "Failed to store file")
		return
	}

	record := file.New(fileHeader.Filename, storagePath, fileHeader.Header.Get("Content-Type"), int64(len(data)))
	if err := h.files.Create(c.Request.Context(), record); err != nil {
		h.logger.Error("Failed to record file", "error", err)
		response.InternalServerError(c, "Failed to record file")
		return
	}
	response.Created(c, record)
}

// DownloadFile streams stored bytes back.
func (h *Handlers) DownloadFile(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := h.files.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "File")
		return
	}

	data, err := h.store.Read(c.Request.Context(), record.StoragePath)
	if err != nil {
		h.logger.Error("Failed to read file bytes", "file_id", id.String(), "error", err)
		response.InternalServerError(c, "Failed to read file")
		return
	}

	contentType := "application/octet-stream"
	if record.MimeType != nil && *record.MimeType != "" {
		contentType = *record.MimeType
	}
	c.Header("Content-Disposition", "attachment; filename="+record.OriginalName)
	c.Data(http.StatusOK, contentType, data)
}

// DeleteFile removes both the bytes and the metadata row.
func (h *Handlers) DeleteFile(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := h.files.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "File")
		return
	}

	if err := h.store.Delete(c.Request.Context(), record.StoragePath); err != nil {
		h.logger.Warn("Failed to delete file bytes", "file_id", id.String(), "error", err)
	}
	if err := h.files.Delete(c.Request.Context(), id); err != nil {
		response.InternalServerError(c, "Failed to delete file record")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id.String()})
}
