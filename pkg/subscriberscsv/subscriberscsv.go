// Package subscriberscsv imports and exports subscriber lists as CSV.
package subscriberscsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/utils/validation"
)

// MaxRows bounds a single import.
const MaxRows = 50000

var ErrTooManyRows = fmt.Errorf("import exceeds %d rows", MaxRows)

type RowError struct {
	Line   int    `json:"line"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Invalid  int        `json:"invalid"`
	Errors   []RowError `json:"errors,omitempty"`
}

// maxReportedErrors keeps the response small on badly formatted files.
const maxReportedErrors = 100

func (r *ImportResult) invalid(line int, email, reason string) {
	r.Invalid++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, RowError{Line: line, Email: email, Reason: reason})
	}
}

// Import reads "email,name" rows. A header row is detected by an "email"
// cell. Addresses already present, in any status, are skipped so previous
// opt-outs are kept.
func Import(db *gorm.DB, r io.Reader) (ImportResult, error) {
	var res ImportResult

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	emailCol, nameCol := 0, 1
	seen := make(map[string]bool)
	var batch []model.Subscriber

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if line > MaxRows+1 {
			return res, ErrTooManyRows
		}

		if line == 1 {
			if idx := indexOf(record, "email"); idx >= 0 {
				emailCol = idx
				nameCol = indexOf(record, "name")
				if nameCol < 0 {
					nameCol = indexOf(record, "nombre")
				}
				continue
			}
		}

		if len(record) <= emailCol {
			res.invalid(line, "", "missing email column")
			continue
		}
		email := model.NormalizeEmail(strings.TrimPrefix(record[emailCol], "\ufeff"))
		if email == "" && len(record) == 1 {
			continue
		}
		if err := validation.Var(email, "required,email"); err != nil {
			res.invalid(line, email, "invalid email")
			continue
		}
		if seen[email] {
			res.Skipped++
			continue
		}
		seen[email] = true

		name := ""
		if nameCol >= 0 && nameCol < len(record) {
			name = strings.TrimSpace(record[nameCol])
		}
		batch = append(batch, model.Subscriber{Email: email, Name: name, Source: model.SubscriberSourceImport})
	}

	if len(batch) == 0 {
		return res, nil
	}

	existing := make(map[string]bool, len(batch))
	emails := make([]string, len(batch))
	for i, s := range batch {
		emails[i] = s.Email
	}
	for start := 0; start < len(emails); start += 500 {
		end := min(start+500, len(emails))
		var found []string
		if err := db.Model(&model.Subscriber{}).Where("email IN ?", emails[start:end]).Pluck("email", &found).Error; err != nil {
			return res, fmt.Errorf("lookup existing subscribers: %w", err)
		}
		for _, e := range found {
			existing[e] = true
		}
	}

	fresh := batch[:0]
	for _, s := range batch {
		if existing[s.Email] {
			res.Skipped++
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return res, nil
	}
	if err := db.CreateInBatches(&fresh, 200).Error; err != nil {
		return res, fmt.Errorf("insert subscribers: %w", err)
	}
	res.Imported = len(fresh)
	return res, nil
}

var exportHeader = []string{"email", "name", "status", "source", "subscribed_at", "unsubscribed_at"}

// Export writes subscribers in id order. An empty status exports all.
func Export(db *gorm.DB, w io.Writer, status model.SubscriberStatus) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}

	q := db.Model(&model.Subscriber{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var page []model.Subscriber
	err := q.FindInBatches(&page, 1000, func(tx *gorm.DB, batch int) error {
		for _, s := range page {
			unsub := ""
			if s.UnsubscribedAt != nil {
				unsub = s.UnsubscribedAt.UTC().Format(time.RFC3339)
			}
			if err := writer.Write([]string{
				s.Email,
				s.Name,
				string(s.Status),
				s.Source,
				s.SubscribedAt.UTC().Format(time.RFC3339),
				unsub,
			}); err != nil {
				return err
			}
		}
		return nil
	}).Error
	if err != nil {
		return fmt.Errorf("export subscribers: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

func indexOf(record []string, name string) int {
	for i, cell := range record {
		cell = strings.TrimPrefix(strings.TrimSpace(cell), "\ufeff")
		if strings.EqualFold(cell, name) {
			return i
		}
	}
	return -1
}
