package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindcanvas/internal/config"
)

// UploadFile stores the multipart "file" field.
func (h *Handler) UploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxUploadSize)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		writeError(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	f, err := workspace(c).Files.UploadFile(c.Request.Context(), fh.Filename, mimeType, data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// ListFiles returns the caller's files, filtered by a MIME prefix in ?type=.
func (h *Handler) ListFiles(c *gin.Context) {
	files := workspace(c).Files
	list := files.ListFiles()
	if prefix := c.Query("type"); prefix != "" {
		list = files.FilesByType(prefix)
	}
	c.JSON(http.StatusOK, gin.H{"files": list, "totalSize": files.TotalSize()})
}

func (h *Handler) GetFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, err := workspace(c).Files.GetFile(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) GetFileContent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	files := workspace(c).Files
	f, err := files.GetFile(id)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := files.GetFileData(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Name}))
	c.Data(http.StatusOK, f.Type, data)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Files.DeleteFile(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearFiles(c *gin.Context) {
	workspace(c).Files.Clear()
	c.Status(http.StatusNoContent)
}
