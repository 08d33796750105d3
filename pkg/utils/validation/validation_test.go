package validation

import (
	"errors"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
)

type subscribeInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=10"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(subscribeInput{Email: "a@b.ec"}))

	err := Struct(subscribeInput{Email: "nope", Name: "a very long name", Color: "red"})
	var verrs Errors
	if assert.True(t, errors.As(err, &verrs)) {
		assert.Equal(t, "must be a valid email", verrs["email"])
		assert.Equal(t, "must be at most 10", verrs["name"])
		assert.Equal(t, "must be a hex color", verrs["color"])
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("https://www.primicias.ec", "required,http_url"))
	assert.Error(t, Var("ftp://x", "required,http_url"))
}

func header(name, contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &multipart.FileHeader{Filename: name, Header: h, Size: size}
}

func TestValidateUpload(t *testing.T) {
	tt := []struct {
		name string
		file *multipart.FileHeader
		rule UploadRule
		want error
	}{
		{"nil", nil, ImageRule, ErrFileRequired},
		{"png ok", header("logo.PNG", "image/png", 1024), ImageRule, nil},
		{"webp ok", header("a.webp", "image/webp", 1024), ImageRule, nil},
		{"too big", header("a.jpg", "image/jpeg", MaxImageSize+1), ImageRule, ErrFileSize},
		{"bad ext", header("a.gif", "image/gif", 10), ImageRule, ErrFileType},
		{"mime mismatch", header("a.jpg", "text/html", 10), ImageRule, ErrFileType},
		{"video ok", header("clip.mp4", "video/mp4", 50*1024*1024), VideoRule, nil},
		{"video too big", header("clip.mp4", "video/mp4", MaxVideoSize+1), VideoRule, ErrFileSize},
		{"image as video", header("a.png", "image/png", 10), VideoRule, ErrFileType},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidateUpload(tc.file, tc.rule))
		})
	}
}
