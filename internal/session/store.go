package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vericall/vericall/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("meeting session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotJoinable       = errors.New("session is not joinable")
	ErrCustomerNotFound  = errors.New("customer not found")
)

// Store owns the meeting session lifecycle. All status changes go through
// it so the pending -> notified -> ongoing -> ended order is enforced in
// exactly one place, under a per-meeting transition lock.
type Store struct {
	db  *gorm.DB
	ttl time.Duration

	nowFn func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(db *gorm.DB, ttl time.Duration) *Store {
	return &Store{
		db:    db,
		ttl:   ttl,
		nowFn: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.nowFn = fn
}

func (s *Store) lockFor(meetingID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[meetingID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[meetingID] = l
	}
	return l
}

func (s *Store) dropLock(meetingID string) {
	s.mu.Lock()
	delete(s.locks, meetingID)
	s.mu.Unlock()
}

// Schedule creates a pending session for the customer with a fresh
// unguessable meeting ID, and marks the customer as scheduled.
func (s *Store) Schedule(customerID string, at time.Time) (*models.MeetingSession, error) {
	var customer models.Customer
	if err := s.db.First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	id, err := gonanoid.New(24)
	if err != nil {
		return nil, err
	}

	sess := &models.MeetingSession{
		CustomerID:  customer.ID,
		MeetingID:   "vc_" + id,
		ScheduledAt: at,
		Status:      models.SessionPending,
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.db.Model(&customer).Update("status", models.VerificationScheduled).Error; err != nil {
		return nil, fmt.Errorf("update customer status: %w", err)
	}

	sess.Customer = customer
	return sess, nil
}

// Get loads a live session with its customer. Ended or idle-expired
// sessions report ErrNotFound so stale meeting links cannot be reused.
func (s *Store) Get(meetingID string) (*models.MeetingSession, error) {
	lock := s.lockFor(meetingID)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLiveLocked(meetingID)
}

// Notify moves a pending session to notified. Calling it on an already
// notified session is a no-op so a customer refreshing the waiting room
// does not error.
func (s *Store) Notify(meetingID string) (*models.MeetingSession, error) {
	lock := s.lockFor(meetingID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadLiveLocked(meetingID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case models.SessionPending:
		return sess, s.saveStatusLocked(sess, models.SessionNotified)
	case models.SessionNotified:
		return sess, nil
	default:
		return nil, ErrInvalidTransition
	}
}

// Start moves a notified session to ongoing on behalf of an agent. Any
// other starting state is ErrInvalidTransition and leaves the session
// untouched.
func (s *Store) Start(meetingID, agentID string) (*models.MeetingSession, error) {
	lock := s.lockFor(meetingID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadLiveLocked(meetingID)
	if err != nil {
		return nil, err
	}

	if sess.Status != models.SessionNotified {
		return nil, ErrInvalidTransition
	}

	sess.AgentID = &agentID
	return sess, s.saveStatusLocked(sess, models.SessionOngoing)
}

// End moves a session to its terminal state. Ending an already ended or
// unknown session is a no-op: callers race on disconnects and the result
// is the same either way.
func (s *Store) End(meetingID string) {
	lock := s.lockFor(meetingID)
	lock.Lock()
	defer lock.Unlock()

	var sess models.MeetingSession
	if err := s.db.First(&sess, "meeting_id = ?", meetingID).Error; err != nil {
		return
	}
	if sess.Status == models.SessionEnded {
		return
	}
	_ = s.saveStatusLocked(&sess, models.SessionEnded)
	s.dropLock(meetingID)
}

// EndIfOngoing ends the session only when a call is in progress. A
// customer leaving the waiting room must not kill the meeting link before
// the agent ever started it.
func (s *Store) EndIfOngoing(meetingID string) {
	lock := s.lockFor(meetingID)
	lock.Lock()
	defer lock.Unlock()

	var sess models.MeetingSession
	if err := s.db.First(&sess, "meeting_id = ?", meetingID).Error; err != nil {
		return
	}
	if sess.Status != models.SessionOngoing {
		return
	}
	_ = s.saveStatusLocked(&sess, models.SessionEnded)
	s.dropLock(meetingID)
}

// Joinable gates signaling room joins: only notified and ongoing sessions
// accept participants.
func (s *Store) Joinable(meetingID string) error {
	sess, err := s.Get(meetingID)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionNotified && sess.Status != models.SessionOngoing {
		return ErrNotJoinable
	}
	return nil
}

func (s *Store) loadLiveLocked(meetingID string) (*models.MeetingSession, error) {
	var sess models.MeetingSession
	err := s.db.Preload("Customer").First(&sess, "meeting_id = ?", meetingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.Status == models.SessionEnded {
		return nil, ErrNotFound
	}

	// Idle expiry: a session stuck in notified/ongoing past the TTL is dead.
	if s.ttl > 0 && sess.Status != models.SessionPending {
		if s.nowFn().Sub(sess.UpdatedAt) > s.ttl {
			_ = s.saveStatusLocked(&sess, models.SessionEnded)
			return nil, ErrNotFound
		}
	}

	return &sess, nil
}

func (s *Store) saveStatusLocked(sess *models.MeetingSession, next models.SessionStatus) error {
	if next.Rank() < sess.Status.Rank() {
		return ErrInvalidTransition
	}
	sess.Status = next
	sess.UpdatedAt = s.nowFn()
	if err := s.db.Save(sess).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
