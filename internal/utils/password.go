package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword derives the one-way credential hash stored in the
// sat_user_auth payload.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword is the opaque credential verifier: it compares a
// stored hash against a candidate in constant time.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
