package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"postboard/internal/apperr"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// dummyHash is compared against when the email is unknown so that both
// failure paths of Login spend the same bcrypt work.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("postboard-dummy-password"), bcrypt.DefaultCost)

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func burnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

func validatePassword(plain string) error {
	if len(plain) < minPasswordLength {
		return apperr.WithDetail(apperr.KindInvalidInput, "PASSWORD_TOO_SHORT")
	}
	if len(plain) > maxPasswordLength {
		return apperr.WithDetail(apperr.KindInvalidInput, "PASSWORD_TOO_LONG")
	}
	return nil
}

func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
