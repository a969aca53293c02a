package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

const (
	photoFormField      = "photo"
	multipartOverhead   = 1 << 20
	defaultMaxPhotoSize = 10 << 20
)

func (s *Server) handleAddVehiclePhoto(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var in usecase.VehiclePhotoInput
	if isMultipart(c) {
		upload, file, ok := s.readPhoto(c)
		if !ok {
			return
		}
		if file != nil {
			defer file.Close()
		}
		in = usecase.VehiclePhotoInput{PhotoType: c.PostForm("photo_type"), Photo: upload}
	} else {
		var req vehiclePhotoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
		in = usecase.VehiclePhotoInput{PhotoType: req.PhotoType, BlobRef: req.BlobRef}
	}
	attachment, err := s.ledger.AddVehiclePhoto(c.Request.Context(), principal, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildAttachmentResponse(attachment))
}

func (s *Server) handleAddItemPhoto(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var in usecase.ItemPhotoInput
	if isMultipart(c) {
		upload, file, ok := s.readPhoto(c)
		if !ok {
			return
		}
		if file != nil {
			defer file.Close()
		}
		in = usecase.ItemPhotoInput{
			ItemCode:         c.PostForm("item_code"),
			CheckDescription: c.PostForm("check_description"),
			Outcome:          domain.CheckOutcome(c.PostForm("outcome")),
			Photo:            upload,
		}
	} else {
		var req itemPhotoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
		in = usecase.ItemPhotoInput{
			ItemCode:         req.ItemCode,
			CheckDescription: req.CheckDescription,
			Outcome:          domain.CheckOutcome(req.Outcome),
			BlobRef:          req.BlobRef,
		}
	}
	attachment, err := s.ledger.AddItemPhoto(c.Request.Context(), principal, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildAttachmentResponse(attachment))
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/form-data")
}

// readPhoto bounds the request body and opens the uploaded file. The caller
// closes the returned file. A form without a file yields a nil upload so the
// ledger can report a missing or closed sheet first.
func (s *Server) readPhoto(c *gin.Context) (*usecase.PhotoUpload, multipart.File, bool) {
	limit := s.maxPhotoBytes
	if limit <= 0 {
		limit = defaultMaxPhotoSize
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	header, err := c.FormFile(photoFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "photo exceeds the size limit")
		case errors.Is(err, http.ErrMissingFile):
			return nil, nil, true
		default:
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid multipart body")
		}
		return nil, nil, false
	}
	if header.Size > limit {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "photo exceeds the size limit")
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "unreadable photo")
		return nil, nil, false
	}
	return &usecase.PhotoUpload{
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
		Body:        file,
	}, file, true
}
