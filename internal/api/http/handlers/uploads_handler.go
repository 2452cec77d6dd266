package handlers

import (
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/api/dto"
	"github.com/spec-kit/uni-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const maxFilesPerUpload = 10

// UploadsHandler stores attachment binaries ahead of ticket submission.
type UploadsHandler struct {
	uploader *storage.Uploader
	maxBytes int64
}

// NewUploadsHandler constructs handler.
func NewUploadsHandler(uploader *storage.Uploader, maxBytes int64) *UploadsHandler {
	return &UploadsHandler{uploader: uploader, maxBytes: maxBytes}
}

// Upload POST /api/upload with multipart field "files". Every file is
// checked before any is stored.
func (h *UploadsHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("No files uploaded", nil)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return apperrors.NewValidationError("No files uploaded", nil)
	}
	if len(headers) > maxFilesPerUpload {
		return apperrors.NewValidationError("Too many files", map[string]any{"max": maxFilesPerUpload})
	}

	uploads := make([]storage.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := h.read(header)
		if err != nil {
			return err
		}
		if _, err := h.uploader.Validate(upload); err != nil {
			return err
		}
		uploads = append(uploads, upload)
	}

	files := make([]dto.AttachmentRequest, 0, len(uploads))
	for _, upload := range uploads {
		stored, err := h.uploader.Save(c.UserContext(), upload)
		if err != nil {
			return err
		}
		files = append(files, dto.AttachmentRequest{
			FileName: stored.FileName,
			FileURL:  stored.FileURL,
			FileMime: stored.FileMime,
			FileSize: stored.FileSize,
		})
	}
	return c.JSON(dto.UploadResponse{Files: files})
}

// read loads at most one byte past the limit so the uploader can reject
// oversized files without buffering them whole.
func (h *UploadsHandler) read(header *multipart.FileHeader) (storage.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return storage.Upload{}, apperrors.NewValidationError("Unreadable file", nil)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return storage.Upload{}, apperrors.NewValidationError("Unreadable file", nil)
	}
	return storage.Upload{Name: header.Filename, Data: data}, nil
}
