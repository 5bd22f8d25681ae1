package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/contractdesk/authcore"
)

const (
	testPassword = "Str0ng!Pass2024"
	newPassword  = "Fresh!Pass2024x"
)

// testProvider is a minimal in-memory authcore.UserProvider.
type testProvider struct {
	mu      sync.Mutex
	byID    map[string]*testUser
	byEmail map[string]string
}

type testUser struct {
	record authcore.UserRecord
	totp   *authcore.TOTPRecord
	backup map[[32]byte]bool
}

func newTestProvider() *testProvider {
	return &testProvider{
		byID:    make(map[string]*testUser),
		byEmail: make(map[string]string),
	}
}

func (p *testProvider) GetUserByEmail(_ context.Context, email string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[email]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	return p.byID[id].record, nil
}

func (p *testProvider) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	return u.record, nil
}

func (p *testProvider) CreateUser(_ context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byEmail[input.Email]; exists {
		return authcore.UserRecord{}, authcore.ErrProviderDuplicateEmail
	}
	u := &testUser{
		record: authcore.UserRecord{
			UserID:       uuid.NewString(),
			Email:        input.Email,
			Name:         input.Name,
			PasswordHash: input.PasswordHash,
			Status:       input.Status,
		},
		backup: make(map[[32]byte]bool),
	}
	p.byID[u.record.UserID] = u
	p.byEmail[input.Email] = u.record.UserID
	return u.record, nil
}

func (p *testProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.record.PasswordHash = newHash
	return nil
}

func (p *testProvider) UpdateAccountStatus(_ context.Context, userID string, status authcore.AccountStatus) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrProviderUserNotFound
	}
	u.record.Status = status
	return u.record, nil
}

func (p *testProvider) GetTOTPSecret(_ context.Context, userID string) (*authcore.TOTPRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return nil, authcore.ErrProviderUserNotFound
	}
	if u.totp == nil {
		return nil, nil
	}
	cp := *u.totp
	return &cp, nil
}

func (p *testProvider) EnrollTOTPSecret(_ context.Context, userID string, secret []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.totp = &authcore.TOTPRecord{Secret: secret}
	return nil
}

func (p *testProvider) MarkTOTPVerified(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok || u.totp == nil {
		return authcore.ErrProviderUserNotFound
	}
	u.totp.Enabled = true
	u.totp.Verified = true
	u.record.TOTPEnabled = true
	return nil
}

func (p *testProvider) DisableTOTP(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authcore.ErrProviderUserNotFound
	}
	u.totp = nil
	u.record.TOTPEnabled = false
	return nil
}

func (p *testProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []authcore.BackupCodeRecord) error {
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

func (p *testProvider) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, error) {
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

func (p *testProvider) totpSecret(userID string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.byID[userID]; ok && u.totp != nil {
		return u.totp.Secret
	}
	return nil
}

// notifierCapture records out-of-band tokens handed to a Notifier.
type notifierCapture struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newNotifierCapture() *notifierCapture {
	return &notifierCapture{tokens: make(map[string]string)}
}

func (c *notifierCapture) notify(email, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[email] = token
}

func (c *notifierCapture) tokenFor(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[email]
}

type testServer struct {
	srv      *httptest.Server
	provider *testProvider
	verify   *notifierCapture
	reset    *notifierCapture
	mr       *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authcore.DefaultConfig()
	cfg.Token.SigningKey = []byte("httpapi-test-key-0123456789abcdef")
	cfg.CSRF.Secret = []byte("httpapi-csrf-key-0123456789abcdef")

	provider := newTestProvider()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		Build()
	require.NoError(t, err)

	verify := newNotifierCapture()
	reset := newNotifierCapture()
	handler := NewHandler(engine, Options{
		VerificationNotifier: verify.notify,
		ResetNotifier:        reset.notify,
	})
	srv := httptest.NewServer(handler.Router())

	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testServer{
		srv:      srv,
		provider: provider,
		verify:   verify,
		reset:    reset,
		mr:       mr,
	}
}

// request fires one JSON request. cookies and headers may be nil.
func (ts *testServer) request(t *testing.T, method, path string, body any, cookies []*http.Cookie, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// signUpVerified provisions a verified account through the API.
func (ts *testServer) signUpVerified(t *testing.T, email string) {
	t.Helper()

	resp, _ := ts.request(t, http.MethodPost, "/auth/signup", map[string]any{
		"email":       email,
		"password":    testPassword,
		"fullName":    "Test User",
		"acceptTerms": true,
	}, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	token := ts.verify.tokenFor(email)
	require.NotEmpty(t, token)

	resp, _ = ts.request(t, http.MethodPost, "/auth/verify-email", map[string]any{"token": token}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// signIn performs a password sign-in and returns the session cookies and
// csrf token.
func (ts *testServer) signIn(t *testing.T, email, password string) ([]*http.Cookie, string) {
	t.Helper()

	resp, body := ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    email,
		"password": password,
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	csrf, _ := body["csrfToken"].(string)
	require.NotEmpty(t, csrf)
	return resp.Cookies(), csrf
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// totpNow derives the current RFC 6238 code for a SHA-1/6-digit/30s
// authenticator secret.
func totpNow(secret []byte) string {
	return totpAt(secret, time.Now().Unix()/30)
}

func totpAt(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%06d", bin%1000000)
}
