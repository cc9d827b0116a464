package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

// uploadFileHandler handles POST /api/files.
func (s *Server) uploadFileHandler(c *echo.Context) error {
	if s.Blobs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "file store not available")
	}

	var req UploadFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	blob, err := s.Blobs.Upload(req.Name, []byte(req.Content), models.BlobType(req.Type), req.MimeType)
	if err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), "file.upload", extractActor(c),
			"file", blob.ID, map[string]any{"name": blob.Name, "size": blob.Size}, sourceAddr(c))
	}

	return c.JSON(http.StatusOK, &FileUploadResponse{Success: true, File: blob})
}

// getFileHandler streams the blob payload with its stored MIME type.
func (s *Server) getFileHandler(c *echo.Context) error {
	if s.Blobs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "file store not available")
	}

	blob, payload, err := s.Blobs.Get(c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}

	mime := blob.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, mime, payload)
}

func (s *Server) getFileMetaHandler(c *echo.Context) error {
	if s.Blobs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "file store not available")
	}

	blob, err := s.Blobs.GetMeta(c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, blob)
}

func (s *Server) deleteFileHandler(c *echo.Context) error {
	if s.Blobs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "file store not available")
	}

	id := c.Param("id")
	if err := s.Blobs.Delete(id); err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), "file.delete", extractActor(c),
			"file", id, nil, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
