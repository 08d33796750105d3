package model

import "gorm.io/gorm"

// Template overrides one of the embedded email templates by name.
type Template struct {
	gorm.Model
	Name    string `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Subject string `json:"subject" gorm:"not null"`
	HTML    string `json:"html" gorm:"type:text;not null"`
	Active  bool   `json:"active" gorm:"not null;default:true"`
}
