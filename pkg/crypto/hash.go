package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования API токенов
var (
	ErrEmptyToken     = errors.New("token cannot be empty")
	ErrTokenMismatch  = errors.New("token does not match hash")
	ErrInvalidHash    = errors.New("invalid token hash format")
	ErrTokenTooLong   = errors.New("token exceeds maximum length of 72 bytes")
	ErrMalformedToken = errors.New("malformed bearer token: expected <user_id>.<secret>")
)

// DefaultCost - стоимость хеширования по умолчанию
const DefaultCost = 12

// MaxTokenLength - максимальная длина токена для bcrypt (72 байта)
const MaxTokenLength = 72

// tokenBytes - длина секрета в байтах (hex-представление в 2 раза длиннее)
const tokenBytes = 24

// HashToken хеширует API токен с использованием bcrypt
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost хеширует токен с указанной стоимостью
// cost ограничивается диапазоном bcrypt.MinCost..bcrypt.MaxCost
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	// bcrypt ограничен 72 байтами
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyToken проверяет соответствие токена хешу
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}

	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}

	return nil
}

// CheckTokenMatch - булевая обёртка над VerifyToken
func CheckTokenMatch(token, hash string) bool {
	return VerifyToken(token, hash) == nil
}

// GenerateToken создаёт случайный секрет токена (hex)
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SplitBearer разбирает значение токена "<user_id>.<secret>"
//
// user_id не может содержать точку; секрет берётся целиком после первой точки.
func SplitBearer(value string) (userID, secret string, err error) {
	userID, secret, ok := strings.Cut(strings.TrimSpace(value), ".")
	if !ok || userID == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	return userID, secret, nil
}
