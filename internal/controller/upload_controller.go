package controller

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/storage"
	"ottoseguridad_backend/pkg/utils/image"
	"ottoseguridad_backend/pkg/utils/validation"
)

func uploadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, validation.ErrFileRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file uploaded"})
	case errors.Is(err, validation.ErrFileSize):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File size too large"})
	case errors.Is(err, validation.ErrFileType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File type not allowed"})
	}
	return respondError(c, err, "Could not upload file")
}

// UploadImage re-encodes the image in the "file" field, which strips
// metadata, and stores it.
func UploadImage(c *fiber.Ctx) error {
	file, _ := c.FormFile("file")
	if err := validation.ValidateUpload(file, validation.ImageRule); err != nil {
		return uploadError(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, err, "Could not read file")
	}
	defer src.Close()

	buf, contentType, ext, err := image.Process(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not process image",
		})
	}

	url, err := storage.Default.Upload(c.UserContext(), storage.Key(ext, "uploads", "images"), buf, int64(buf.Len()), contentType)
	if err != nil {
		return respondError(c, err, "Could not upload image")
	}

	logger.Log.Info("image uploaded", "url", url, "size", buf.Len())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":          url,
		"content_type": contentType,
		"size":         buf.Len(),
	})
}

// UploadVideo stores the file in the "file" field as is.
func UploadVideo(c *fiber.Ctx) error {
	file, _ := c.FormFile("file")
	if err := validation.ValidateUpload(file, validation.VideoRule); err != nil {
		return uploadError(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, err, "Could not read file")
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType := "video/mp4"
	if ext == ".webm" {
		contentType = "video/webm"
	}

	url, err := storage.Default.Upload(c.UserContext(), storage.Key(ext, "uploads", "videos"), src, file.Size, contentType)
	if err != nil {
		return respondError(c, err, "Could not upload video")
	}

	logger.Log.Info("video uploaded", "url", url, "size", file.Size)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":          url,
		"content_type": contentType,
		"size":         file.Size,
	})
}
