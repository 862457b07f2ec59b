package notify

import (
	"log/slog"
	"sync"
)

// Event announces a new meeting request to connected agents.
type Event struct {
	MeetingID    string `json:"meeting_id"`
	CustomerName string `json:"customer_name"`
	NationalID   string `json:"national_id"`
}

// Subscriber is one connected admin stream. Read events from C until it is
// closed, then stop; always call Close when done.
type Subscriber struct {
	C chan Event

	notifier *Notifier
	once     sync.Once
}

// Close detaches the subscriber from the notifier.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.notifier.remove(s)
		close(s.C)
	})
}

// Notifier fans meeting-request events out to every connected admin
// stream. There is no backlog: with nobody connected an event is simply
// dropped, and an agent reconnecting later missed it. A subscriber whose
// buffer is full is skipped rather than stalling the publisher.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe attaches a new admin stream.
func (n *Notifier) Subscribe() *Subscriber {
	s := &Subscriber{
		C:        make(chan Event, 10),
		notifier: n,
	}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

// Publish delivers the event to every current subscriber without blocking.
func (n *Notifier) Publish(event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for s := range n.subs {
		select {
		case s.C <- event:
		default:
			n.logger.Debug("dropping notification for slow subscriber", "meeting_id", event.MeetingID)
		}
	}
}

// SubscriberCount reports how many admin streams are connected.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *Notifier) remove(s *Subscriber) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}
