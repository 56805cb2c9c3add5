package identity

import (
	"context"
	"errors"
	"time"

	"campusops/internal/identity/verifierclient"
)

// Student is a resolvable scan subject.
type Student struct {
	ID            string
	FullName      string
	Email         string
	FingerprintID *string
	Passkey       *int
	Active        bool
	CreatedAt     time.Time
}

// Payload is a raw scan event from a kiosk. Exactly one identification
// method must be populated.
type Payload struct {
	FingerprintID string `json:"fingerprint_id,omitempty"`
	Passkey       *int   `json:"passkey,omitempty"`
	CredentialID  string `json:"credential_id,omitempty"`
	Assertion     string `json:"assertion,omitempty"`
	Challenge     string `json:"challenge,omitempty"`
}

var (
	// ErrUnknownIdentity means the payload resolved to no active student.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrAmbiguousPayload means zero or multiple identification methods
	// were supplied.
	ErrAmbiguousPayload = errors.New("exactly one of fingerprint_id, passkey, or credential must be supplied")
)

// StudentStore looks up and mutates students for identity purposes.
type StudentStore interface {
	ByID(ctx context.Context, id string) (*Student, error)
	ByFingerprint(ctx context.Context, fingerprintID string) (*Student, error)
	ByPasskey(ctx context.Context, passkey int) (*Student, error)
	PasskeyTaken(ctx context.Context, passkey int) (bool, error)
	SetPasskey(ctx context.Context, studentID string, passkey int) error
}

// Verifier is the external collaborator that validates credential
// assertions and returns the bound student id.
type Verifier interface {
	VerifyAssertion(ctx context.Context, credentialID, assertion, challenge string) (*verifierclient.VerifyResult, error)
}

// Resolver maps scan payloads to students. It performs no cryptography
// itself; biometric credentials are delegated to the Verifier.
type Resolver struct {
	store      StudentStore
	verifier   Verifier
	challenges *ChallengeCache
}

// NewResolver builds a resolver. challenges may be nil when the credential
// path is unused.
func NewResolver(store StudentStore, verifier Verifier, challenges *ChallengeCache) *Resolver {
	return &Resolver{store: store, verifier: verifier, challenges: challenges}
}

// Resolve maps one payload to an active student.
func (r *Resolver) Resolve(ctx context.Context, p Payload) (Student, error) {
	methods := 0
	if p.FingerprintID != "" {
		methods++
	}
	if p.Passkey != nil {
		methods++
	}
	if p.CredentialID != "" {
		methods++
	}
	if methods != 1 {
		return Student{}, ErrAmbiguousPayload
	}

	var (
		st  *Student
		err error
	)
	switch {
	case p.FingerprintID != "":
		st, err = r.store.ByFingerprint(ctx, p.FingerprintID)
	case p.Passkey != nil:
		st, err = r.store.ByPasskey(ctx, *p.Passkey)
	default:
		st, err = r.resolveCredential(ctx, p)
	}
	if err != nil {
		return Student{}, err
	}
	if st == nil || !st.Active {
		return Student{}, ErrUnknownIdentity
	}
	return *st, nil
}

func (r *Resolver) resolveCredential(ctx context.Context, p Payload) (*Student, error) {
	if r.challenges != nil && p.Challenge != "" {
		if !r.challenges.Consume(p.CredentialID, p.Challenge) {
			return nil, ErrUnknownIdentity
		}
	}
	res, err := r.verifier.VerifyAssertion(ctx, p.CredentialID, p.Assertion, p.Challenge)
	if err != nil {
		return nil, err
	}
	if !res.Verified || res.StudentID == "" {
		return nil, ErrUnknownIdentity
	}
	return r.store.ByID(ctx, res.StudentID)
}
