package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/session"
)

type UserCreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=admin editor"`
}

type UserUpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin editor"`
	Active   *bool   `json:"active"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

func ListUsers(c *fiber.Ctx) error {
	var users []model.User
	if err := database.GetDB().Order("created_at DESC").Find(&users).Error; err != nil {
		return respondError(c, err, "Could not fetch users")
	}

	out := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		out = append(out, users[i].GetPublicProfile())
	}
	return c.JSON(fiber.Map{"users": out, "total": len(out)})
}

func GetUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	var user model.User
	if err := database.GetDB().First(&user, id).Error; err != nil {
		return respondError(c, err, "Could not fetch user")
	}
	return c.JSON(user.GetPublicProfile())
}

func CreateUser(c *fiber.Ctx) error {
	input := new(UserCreateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}
	role := model.Role(input.Role)
	if role == "" {
		role = model.RoleEditor
	}

	db := database.GetDB()
	var count int64
	db.Unscoped().Model(&model.User{}).Where("email = ?", model.NormalizeEmail(input.Email)).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already exists",
		})
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return respondError(c, err, "Could not hash password")
	}

	user := model.User{Email: input.Email, Name: input.Name, Role: role, Active: true}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&model.Account{
			UserID:     user.ID,
			ProviderID: model.ProviderCredential,
			Password:   hash,
		}).Error
	})
	if err != nil {
		return respondError(c, err, "Could not create user")
	}

	return c.Status(fiber.StatusCreated).JSON(user.GetPublicProfile())
}

// UpdateUser edits a user. Deactivating a user or resetting the password
// ends all of their sessions.
func UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(UserUpdateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	claims := middleware.Claims(c)
	if id == claims.UserID && (input.Active != nil && !*input.Active || input.Role != nil && model.Role(*input.Role) != claims.Role) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot deactivate yourself or change your own role",
		})
	}

	db := database.GetDB()
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		return respondError(c, err, "Could not fetch user")
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
		user.Name = *input.Name
	}
	if input.Role != nil {
		updates["role"] = *input.Role
		user.Role = model.Role(*input.Role)
	}
	if input.Active != nil {
		updates["active"] = *input.Active
		user.Active = *input.Active
	}
	revoke := input.Active != nil && !*input.Active

	err = db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}
		if input.Password != nil {
			hash, err := hashPassword(*input.Password)
			if err != nil {
				return err
			}
			if err := tx.Model(&model.Account{}).
				Where("user_id = ? AND provider_id = ?", user.ID, model.ProviderCredential).
				Update("password", hash).Error; err != nil {
				return err
			}
			revoke = revoke || id != claims.UserID
		}
		if revoke {
			return session.RevokeUser(tx, user.ID)
		}
		return nil
	})
	if err != nil {
		return respondError(c, err, "Could not update user")
	}

	return c.JSON(user.GetPublicProfile())
}

func DeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	if id == middleware.Claims(c).UserID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot delete your own account",
		})
	}

	db := database.GetDB()
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return session.RevokeUser(tx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return respondError(c, err, "Could not delete user")
	}

	return c.JSON(fiber.Map{"message": "User deleted"})
}
