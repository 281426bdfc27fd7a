package utils

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash of plain.  cost must lie within
// bcrypt's bounds; config validation keeps BCRYPT_COST there.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// placeholders holds one lazily built hash per cost.
var placeholders sync.Map // int -> func() []byte

func placeholderHash(cost int) []byte {
	build, _ := placeholders.LoadOrStore(cost, sync.OnceValue(func() []byte {
		h, err := bcrypt.GenerateFromPassword([]byte("escape-room-placeholder"), cost)
		if err != nil {
			h, _ = bcrypt.GenerateFromPassword([]byte("escape-room-placeholder"), bcrypt.DefaultCost)
		}
		return h
	}))
	return build.(func() []byte)()
}

// RejectPassword spends the same bcrypt work as checking plain against a
// real hash of the given cost, and always fails.  It keeps an unknown
// account as slow to reject as a wrong password.
func RejectPassword(plain string, cost int) bool {
	_ = bcrypt.CompareHashAndPassword(placeholderHash(cost), []byte(plain))
	return false
}
