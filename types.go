package authcore

import (
	"context"
	"errors"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountActive accounts may sign in.
	AccountActive AccountStatus = iota
	// AccountPendingVerification accounts exist but have not confirmed
	// their email; sign-in is rejected with [ErrAccountUnverified].
	AccountPendingVerification
	// AccountDisabled accounts are administratively switched off.
	AccountDisabled
	// AccountLocked accounts are frozen pending review.
	AccountLocked
)

var (
	// ErrProviderUserNotFound must be returned by [UserProvider] lookups
	// for unknown users.
	ErrProviderUserNotFound = errors.New("provider: user not found")
	// ErrProviderDuplicateEmail must be returned by
	// [UserProvider.CreateUser] when the email is taken.
	ErrProviderDuplicateEmail = errors.New("provider: duplicate email")
)

// UserRecord is the account snapshot returned by [UserProvider].
type UserRecord struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	TOTPEnabled  bool
	Status       AccountStatus
}

// CreateUserInput is the input for [UserProvider.CreateUser].
type CreateUserInput struct {
	Email        string
	Name         string
	PasswordHash string
	Status       AccountStatus
}

// TOTPRecord is the authenticator state held by the provider. Enabled
// flips only after the enrollment code is confirmed; Verified marks that
// confirmation.
type TOTPRecord struct {
	Secret   []byte
	Enabled  bool
	Verified bool
}

// BackupCodeRecord stores the SHA-256 hash of one backup code. The
// plaintext is shown to the user once and never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// UserProvider is the identity-store interface callers implement to
// integrate authcore with their user database. All credential and MFA
// material lives behind it; the engine holds only Redis-side state.
//
// ConsumeBackupCode must be atomic: two concurrent calls with the same
// hash must not both report success.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	UpdateAccountStatus(ctx context.Context, userID string, status AccountStatus) (UserRecord, error)

	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	EnrollTOTPSecret(ctx context.Context, userID string, secret []byte) error
	MarkTOTPVerified(ctx context.Context, userID string) error
	DisableTOTP(ctx context.Context, userID string) error

	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)
}

// SignUpInput is the input for [Engine.SignUp].
type SignUpInput struct {
	Email    string
	Name     string
	Password string
}

// SignUpResult is returned by [Engine.SignUp]. VerificationToken is the
// single-use email confirmation token; delivering it to the user (mail,
// console, test harness) is the caller's job.
type SignUpResult struct {
	UserID            string
	VerificationToken string
}

// SignInResult is returned by [Engine.SignIn] and the MFA confirmations.
// Either MFARequired is set with a challenge ID and everything else is
// empty, or the token fields are populated and MFARequired is false.
type SignInResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	CSRFToken    string

	MFARequired    bool
	MFAChallengeID string
}

// AuthResult is the identity extracted from a valid access token.
type AuthResult struct {
	UserID    string
	SessionID string
}

// TOTPEnrollment holds the pending authenticator material returned by
// [Engine.EnrollTOTP]. URI is the otpauth:// provisioning link.
type TOTPEnrollment struct {
	SecretBase32 string
	URI          string
}
