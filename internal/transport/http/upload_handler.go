package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/blob"
	"github.com/vovakirdan/famchat/internal/metrics"
	"github.com/vovakirdan/famchat/internal/proto"
)

const (
	uploadFormField = "file"
	// multipartOverhead leaves room for part headers around the file body.
	multipartOverhead = 1 << 20
)

// UploadHandler accepts multipart uploads and stores them in the blob store.
type UploadHandler struct {
	blobs *blob.Disk
	log   *zerolog.Logger
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(blobs *blob.Disk, logger *zerolog.Logger) *UploadHandler {
	return &UploadHandler{blobs: blobs, log: logger}
}

// Upload stores the "file" part and returns its metadata.
// POST /upload
func (h *UploadHandler) Upload(c *gin.Context) {
	if limit := h.blobs.MaxBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "multipart form expected"})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.readFailed(c, err)
			return
		}
		if part.FormName() != uploadFormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		stored, err := h.blobs.Save(part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if err != nil {
			h.readFailed(c, err)
			return
		}

		metrics.UploadBytes.Observe(float64(stored.SizeBytes))
		h.log.Info().
			Str("name", stored.StoredName).
			Str("mimetype", stored.MimeType).
			Int64("size", stored.SizeBytes).
			Msg("file uploaded")
		c.JSON(http.StatusOK, proto.UploadResponse{
			Filename:     stored.StoredName,
			OriginalName: stored.OriginalName,
			MimeType:     stored.MimeType,
			Size:         stored.SizeBytes,
			URL:          stored.URL,
		})
		return
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
}

func (h *UploadHandler) readFailed(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.Is(err, blob.ErrTooLarge) || errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
		return
	}
	h.log.Error().Err(err).Msg("upload failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "upload failed"})
}
