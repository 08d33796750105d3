package model

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Account{},
		&Session{},
		&Category{},
		&Source{},
		&Bulletin{},
		&Subscriber{},
		&EmailSend{},
		&EmailClick{},
		&Template{},
		&AuditLog{},
	}
}
