package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxEmailLen matches the users.email column width.
const MaxEmailLen = 255

// EmailPattern accepts local@domain.tld with a conservative character set.
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ValidateEmail checks the email format. Case is preserved.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	if strings.TrimSpace(email) != email {
		return fmt.Errorf("email must not contain surrounding whitespace")
	}

	if !EmailPattern.MatchString(email) {
		return fmt.Errorf("value is not a valid email address")
	}

	local := email[:strings.LastIndex(email, "@")]
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return fmt.Errorf("value is not a valid email address")
	}

	return nil
}
