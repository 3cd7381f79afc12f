package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinUsernameLen минимальная длина username после trim
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username после trim
	MaxUsernameLen = 50
)

// NormalizeUsername обрезает пробелы по краям и проверяет результат.
// Username это отображаемое имя: допускаются любые печатные символы.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)

	if username == "" {
		return "", fmt.Errorf("username cannot be empty")
	}

	n := utf8.RuneCountInString(username)
	if n < MinUsernameLen {
		return "", fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}

	if n > MaxUsernameLen {
		return "", fmt.Errorf("username cannot exceed %d characters", MaxUsernameLen)
	}

	return username, nil
}

// ValidateUsername проверяет username без изменения
func ValidateUsername(username string) error {
	_, err := NormalizeUsername(username)
	return err
}
