package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
)

// ErrPasskeyExhausted means the issuer could not find a free 6-digit value
// within the attempt bound. With six digits and a campus-sized population
// this indicates a configuration or capacity fault, not bad luck.
var ErrPasskeyExhausted = errors.New("could not allocate a unique passkey")

const (
	passkeyMin  = 100000
	passkeySpan = 900000
)

// PasskeyIssuer draws unique 6-digit kiosk passkeys for students.
type PasskeyIssuer struct {
	store       StudentStore
	maxAttempts int
}

// NewPasskeyIssuer builds an issuer with a bounded attempt count.
func NewPasskeyIssuer(store StudentStore, maxAttempts int) *PasskeyIssuer {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	return &PasskeyIssuer{store: store, maxAttempts: maxAttempts}
}

// Issue assigns a fresh passkey to the student and returns it. The value
// is uniform over [100000, 999999] and unique across students; collisions
// are retried up to the attempt bound.
func (i *PasskeyIssuer) Issue(ctx context.Context, studentID string) (int, error) {
	st, err := i.store.ByID(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, ErrUnknownIdentity
	}

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		pk, err := randomPasskey()
		if err != nil {
			return 0, err
		}
		taken, err := i.store.PasskeyTaken(ctx, pk)
		if err != nil {
			return 0, err
		}
		if taken {
			continue
		}
		if err := i.store.SetPasskey(ctx, studentID, pk); err != nil {
			return 0, err
		}
		return pk, nil
	}
	return 0, ErrPasskeyExhausted
}

func randomPasskey() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(passkeySpan))
	if err != nil {
		return 0, err
	}
	return passkeyMin + int(n.Int64()), nil
}
