package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpired      = errors.New("session expired")
	ErrRevoked      = errors.New("session revoked")
)

type Claims struct {
	SessionID string     `json:"sid"`
	UserID    uint       `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues JWTs bound to rows in the sessions table, so logout and
// user deactivation take effect before the token expires.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) GenerateToken(s *model.Session, user *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: s.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(m.now()),
		},
	})

	return token.SignedString(m.secret)
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue creates a session row for user and returns its signed token.
func (m *Manager) Issue(db *gorm.DB, user *model.User, ip, userAgent string) (string, *model.Session, error) {
	s := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: m.now().Add(m.ttl),
		IP:        ip,
		UserAgent: truncate(userAgent, 255),
	}
	if err := db.Create(s).Error; err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	token, err := m.GenerateToken(s, user)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, s, nil
}

// Resolve validates the token and loads its live session and user.
func (m *Manager) Resolve(db *gorm.DB, tokenString string) (*Claims, *model.Session, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	var s model.Session
	if err := db.Preload("User").First(&s, "id = ?", claims.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRevoked
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(m.now()) {
		return nil, nil, ErrExpired
	}
	if !s.User.Active {
		return nil, nil, ErrRevoked
	}

	// role changes apply immediately
	claims.Role = s.User.Role
	return claims, &s, nil
}

func Revoke(db *gorm.DB, sessionID string) error {
	return db.Where("id = ?", sessionID).Delete(&model.Session{}).Error
}

func RevokeUser(db *gorm.DB, userID uint) error {
	return db.Where("user_id = ?", userID).Delete(&model.Session{}).Error
}

// Cleanup deletes expired sessions and reports how many were removed.
func Cleanup(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Where("expires_at <= ?", now).Delete(&model.Session{})
	return res.RowsAffected, res.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
