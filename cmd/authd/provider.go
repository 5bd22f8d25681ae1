package main

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/contractdesk/authcore"
)

// memoryProvider is a development-grade identity store. Accounts live in
// process memory and are gone on restart; anything beyond a demo should
// implement authcore.UserProvider over a real database.
type memoryProvider struct {
	mu      sync.Mutex
	byID    map[string]*memoryUser
	byEmail map[string]*memoryUser
}

type memoryUser struct {
	record authcore.UserRecord
	totp   *authcore.TOTPRecord
	backup map[[32]byte]bool
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:    make(map[string]*memoryUser),
		byEmail: make(map[string]*memoryUser),
	}
}

func (p *memoryProvider) GetUserByEmail(_ context.Context, email string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byEmail[strings.ToLower(email)]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	return u.record, nil
}

func (p *memoryProvider) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	return u.record, nil
}

func (p *memoryProvider) CreateUser(_ context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email := strings.ToLower(input.Email)
	if _, exists := p.byEmail[email]; exists {
		return authcore.UserRecord{}, authcore.ErrProviderDuplicateEmail
	}
	u := &memoryUser{
		record: authcore.UserRecord{
			UserID:       uuid.NewString(),
			Email:        email,
			Name:         input.Name,
			PasswordHash: input.PasswordHash,
			Status:       input.Status,
		},
		backup: make(map[[32]byte]bool),
	}
	p.byID[u.record.UserID] = u
	p.byEmail[email] = u
	return u.record, nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.record.PasswordHash = newHash
	return nil
}

func (p *memoryProvider) UpdateAccountStatus(_ context.Context, userID string, status authcore.AccountStatus) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	u.record.Status = status
	return u.record, nil
}

func (p *memoryProvider) GetTOTPSecret(_ context.Context, userID string) (*authcore.TOTPRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return nil, authcore.ErrProviderUserNotFound
	}
	if u.totp == nil {
		return nil, nil
	}
	rec := *u.totp
	return &rec, nil
}

func (p *memoryProvider) EnrollTOTPSecret(_ context.Context, userID string, secret []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.totp = &authcore.TOTPRecord{Secret: append([]byte(nil), secret...)}
	return nil
}

func (p *memoryProvider) MarkTOTPVerified(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	if u.totp == nil {
		return authcore.ErrProviderUserNotFound
	}
	u.totp.Enabled = true
	u.totp.Verified = true
	u.record.TOTPEnabled = true
	return nil
}

func (p *memoryProvider) DisableTOTP(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.totp = nil
	u.backup = make(map[[32]byte]bool)
	u.record.TOTPEnabled = false
	return nil
}

func (p *memoryProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []authcore.BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.backup = make(map[[32]byte]bool, len(codes))
	for _, c := range codes {
		u.backup[c.Hash] = true
	}
	return nil
}

func (p *memoryProvider) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return false, authcore.ErrProviderUserNotFound
	}
	if !u.backup[codeHash] {
		return false, nil
	}
	delete(u.backup, codeHash)
	return true, nil
}
