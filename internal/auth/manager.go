// Package auth は API キーによる認証を提供します。
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/text-forge/internal/logging"
)

var (
	attemptWindow    = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxFailedAttempt = 5
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は API キーの検証と失敗回数の管理を行います。
type Manager struct {
	keyHash []byte
	clock   clockwork.Clock
	logger  *zap.Logger

	lock     sync.Mutex
	attempts map[string]*attemptState
	// verified は bcrypt 検証に成功したキーの SHA-256 です
	verified [][sha256.Size]byte
}

// NewManager は認証マネージャーを作成します。keyHash が空の場合は認証を行いません。
func NewManager(keyHash string, clock clockwork.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		keyHash:  []byte(keyHash),
		clock:    clock,
		logger:   logging.OrNop(logger).Named("auth"),
		attempts: make(map[string]*attemptState),
	}
}

// Enabled は API キー認証が有効かどうかを返します。
func (m *Manager) Enabled() bool {
	return len(m.keyHash) > 0
}

// Verify は API キーを検証します。
func (m *Manager) Verify(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	m.lock.Lock()
	for _, v := range m.verified {
		if subtle.ConstantTimeCompare(v[:], digest[:]) == 1 {
			m.lock.Unlock()
			return true
		}
	}
	m.lock.Unlock()

	if bcrypt.CompareHashAndPassword(m.keyHash, []byte(key)) != nil {
		return false
	}

	m.lock.Lock()
	m.verified = append(m.verified, digest)
	m.lock.Unlock()
	return true
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.clock.Now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.clock.Now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > attemptWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxFailedAttempt {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxFailedAttempt
		m.logger.Warn("client locked out after repeated invalid api keys", zap.String("ip", ip))
	}

	return max(maxFailedAttempt-state.count, 0)
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}
