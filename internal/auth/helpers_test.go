package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-otp-auth/internal/config"
	"github.com/redmonkez12/go-otp-auth/internal/database/dbtest"
	"github.com/redmonkez12/go-otp-auth/internal/email"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/internal/otp"
	"github.com/redmonkez12/go-otp-auth/internal/ratelimit"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

const (
	testPasetoKey = "0123456789abcdef0123456789abcdef"
	testIssuer    = "otp-auth-test"
	testCode      = "482913"
	testPassword  = "Secret!1"
)

// fastArgon2 keeps hashing cheap in tests.
var fastArgon2 = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type resetMail struct {
	To    string
	Token string
}

type fakeNotifier struct {
	mu     sync.Mutex
	otps   []email.OTPEmail
	resets []resetMail
	err    error
}

func (n *fakeNotifier) SendOTP(_ context.Context, m email.OTPEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.otps = append(n.otps, m)
	return nil
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, to, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, resetMail{To: to, Token: token})
	return nil
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *fakeNotifier) lastOTP(t *testing.T) email.OTPEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.otps, "no verification code was sent")
	return n.otps[len(n.otps)-1]
}

func (n *fakeNotifier) lastReset(t *testing.T) resetMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets, "no reset mail was sent")
	return n.resets[len(n.resets)-1]
}

type harness struct {
	svc      *Service
	users    *user.Repository
	issuer   *Issuer
	notifier *fakeNotifier
	clock    *testClock
	redis    *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	users := user.NewRepository(dbtest.New(t))
	clock := newTestClock()

	engine := otp.NewEngine(users, 10*time.Minute,
		otp.WithClock(clock.Now),
		otp.WithGenerator(func() (string, error) { return testCode, nil }),
	)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := NewPasetoService([]byte(testPasetoKey), testIssuer)
	require.NoError(t, err)
	tokens.now = clock.Now

	issuer := NewIssuer(tokens, NewRedisRevocationStore(rdb), 15*time.Minute, 7*24*time.Hour)
	issuer.now = clock.Now

	notifier := &fakeNotifier{}
	cooldown := ratelimit.NewLimiter(rdb, config.RateLimitConfig{EmailCooldown: 2 * time.Minute})
	svc := NewService(users, engine, issuer, NewPasswordResetRepository(rdb), notifier, cooldown,
		NewPasswordHasher(fastArgon2), logging.Nop(),
		Options{SendTimeout: time.Second, PasswordResetTTL: time.Hour},
	)
	t.Cleanup(svc.Wait)

	return &harness{
		svc:      svc,
		users:    users,
		issuer:   issuer,
		notifier: notifier,
		clock:    clock,
		redis:    mr,
	}
}

func (h *harness) register(t *testing.T, addr string) *user.User {
	t.Helper()
	u, err := h.svc.Register(context.Background(), RegisterInput{Email: addr, Password: testPassword, FirstName: "Ana"})
	require.NoError(t, err)
	return u
}

func (h *harness) registerVerified(t *testing.T, addr string) (*user.User, *Session) {
	t.Helper()
	u := h.register(t, addr)
	session, err := h.svc.Verify(context.Background(), u.ID.String(), testCode)
	require.NoError(t, err)
	return u, session
}
