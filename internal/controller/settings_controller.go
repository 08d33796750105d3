package controller

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
)

type ProfileUpdateInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

type PasswordChangeInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func UpdateProfile(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(ProfileUpdateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	var user model.User
	if err := database.GetDB().First(&user, claims.UserID).Error; err != nil {
		return respondError(c, err, "Could not fetch user")
	}
	if err := database.GetDB().Model(&user).Update("name", input.Name).Error; err != nil {
		return respondError(c, err, "Could not update profile")
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    user.GetPublicProfile(),
	})
}

// ChangePassword replaces the credential password and signs out every other
// session of the user.
func ChangePassword(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(PasswordChangeInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var account model.Account
	if err := db.Where("user_id = ? AND provider_id = ?", claims.UserID, model.ProviderCredential).First(&account).Error; err != nil {
		return respondError(c, err, "Could not fetch account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(input.CurrentPassword)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Current password is incorrect",
		})
	}

	hash, err := hashPassword(input.NewPassword)
	if err != nil {
		return respondError(c, err, "Could not hash password")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&account).Update("password", hash).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND id <> ?", claims.UserID, claims.SessionID).Delete(&model.Session{}).Error
	})
	if err != nil {
		return respondError(c, err, "Could not change password")
	}

	return c.JSON(fiber.Map{"message": "Password updated"})
}

// hashPassword is shared by the user admin handlers.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
