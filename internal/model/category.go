package model

import (
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// FallbackCategory collects articles the classifier could not place.
const FallbackCategory = "otros"

type Category struct {
	gorm.Model
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
	Color       string `json:"color" gorm:"size:20"`
	SortOrder   int    `json:"sort_order" gorm:"default:0"`
	Active      bool   `json:"active" gorm:"not null;default:true"`
}

// BeforeSave fills the slug from the name when missing.
func (c *Category) BeforeSave(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	} else {
		c.Slug = slug.Make(c.Slug)
	}
	return nil
}
