package controller

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackOpen always answers with the pixel, even for unknown ids or when the
// open cannot be stored.
func TrackOpen(c *fiber.Ctx) error {
	trackingID := c.Params("trackingId")
	if err := newsletter.RecordOpen(database.GetDB(), trackingID, time.Now()); err != nil {
		logger.Log.Warn("could not record open", "tracking_id", trackingID, "err", err)
	}

	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate, private")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	c.Set(fiber.HeaderContentType, "image/gif")
	return c.Status(fiber.StatusOK).Send(transparentGIF)
}

// TrackClick records the click and redirects to the original link. Only
// absolute http and https targets are followed.
func TrackClick(c *fiber.Ctx) error {
	trackingID := c.Params("trackingId")
	target := c.Query("url")

	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (!strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https")) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid redirect URL",
		})
	}

	if err := newsletter.RecordClick(database.GetDB(), trackingID, target, c.IP(), c.Get(fiber.HeaderUserAgent), time.Now()); err != nil {
		logger.Log.Warn("could not record click", "tracking_id", trackingID, "err", err)
	}

	return c.Redirect(target, fiber.StatusFound)
}
