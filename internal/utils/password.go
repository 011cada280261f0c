package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword bcrypt-hashes a member's password with the configured
// cost (BCRYPT_COST). Costs outside bcrypt's range fail here rather
// than at login time.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
// The comparison is constant-time inside bcrypt.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
