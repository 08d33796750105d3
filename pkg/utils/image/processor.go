package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
)

// Process decodes an uploaded image and re-encodes it, stripping metadata.
// It returns the encoded bytes, the content type and the file extension.
func Process(src io.Reader) (*bytes.Buffer, string, string, error) {
	img, format, err := image.Decode(src)
	if err != nil {
		return nil, "", "", fmt.Errorf("could not decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	ext := "." + format

	switch format {
	case "jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
		ext = ".jpg"
	case "png":
		err = png.Encode(buf, img)
	case "webp":
		err = webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: 85})
	default:
		return nil, "", "", fmt.Errorf("unsupported image format: %s", format)
	}

	if err != nil {
		return nil, "", "", fmt.Errorf("could not encode image: %w", err)
	}

	return buf, "image/" + format, ext, nil
}
