package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

// SessionStatus is the session state exposed to UI layers and diagnostics.
type SessionStatus struct {
	LoginRequired bool       `json:"login_required"`
	Online        bool       `json:"online"`
	LastFailure   string     `json:"last_failure,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}

// SessionService reacts to authentication and connectivity events. When the
// token cannot be refreshed it drops every cached value, since it may belong
// to the previous session, and flags that a login is required.
type SessionService struct {
	cache  ports.Cache
	logger *logrus.Logger

	mu     sync.RWMutex
	status SessionStatus
}

func NewSessionService(cache ports.Cache, logger *logrus.Logger) *SessionService {
	return &SessionService{cache: cache, logger: logger, status: SessionStatus{Online: true}}
}

// HandleAuthenticationFailed is subscribed to AuthenticationFailedEvent.
func (s *SessionService) HandleAuthenticationFailed(evt events.AuthenticationFailedEvent) {
	s.mu.Lock()
	already := s.status.LoginRequired
	at := evt.At
	s.status.LoginRequired = true
	s.status.LastFailure = evt.Reason
	s.status.FailedAt = &at
	s.mu.Unlock()

	if already {
		return
	}
	if s.cache != nil {
		s.cache.ClearAll()
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"endpoint": evt.Endpoint, "reason": evt.Reason}).Warn("session expired, login required")
	}
}

// HandleConnectivityChanged is subscribed to ConnectivityChangedEvent.
func (s *SessionService) HandleConnectivityChanged(evt events.ConnectivityChangedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Online = evt.Online
}

// Resume clears the login flag once the user has authenticated again.
func (s *SessionService) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LoginRequired = false
	s.status.LastFailure = ""
	s.status.FailedAt = nil
}

func (s *SessionService) LoginRequired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.LoginRequired
}

func (s *SessionService) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
