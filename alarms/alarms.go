/*
Package alarms keeps time alarms for loans.

PURPOSE:
  A registry of (time, recipient) pairs. Notify dispatches every alarm due
  at or before a given time, earliest first, and drops them. The grace
  scheduler arms one alarm per open loan at its next grace period end.

ORDERING:
  Alarms fire in ascending time order. Recipients sharing a time fire in
  lexical order.

SEE ALSO:
  - api/scheduler.go: Arms and fires alarms
  - loan/loan.go: NextGracePeriodEnd
*/
package alarms

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/lease-loan/finance"
)

var (
	ErrUnknownTimestamp = errors.New("unknown alarm timestamp")
	ErrUnknownRecipient = errors.New("unknown alarm recipient")
)

// Dispatcher receives fired alarms.
type Dispatcher interface {
	Dispatch(recipient string, at finance.Timestamp)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(recipient string, at finance.Timestamp)

func (f DispatcherFunc) Dispatch(recipient string, at finance.Timestamp) { f(recipient, at) }

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	byTime map[finance.Timestamp]map[string]struct{}
	byID   map[string]map[finance.Timestamp]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byTime: make(map[finance.Timestamp]map[string]struct{}),
		byID:   make(map[string]map[finance.Timestamp]struct{}),
	}
}

// Add arms an alarm. Adding the same pair twice is a no-op.
func (r *Registry) Add(recipient string, at finance.Timestamp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(recipient, at)
}

// Remove disarms an alarm.
func (r *Registry) Remove(recipient string, at finance.Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipients, ok := r.byTime[at]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTimestamp, at)
	}
	if _, ok := recipients[recipient]; !ok {
		return fmt.Errorf("%w: %s at %s", ErrUnknownRecipient, recipient, at)
	}
	r.removeLocked(recipient, at)
	return nil
}

// Reschedule replaces every alarm of recipient with one at the given time.
func (r *Registry) Reschedule(recipient string, at finance.Timestamp) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t := range r.byID[recipient] {
		r.removeLocked(recipient, t)
	}
	r.addLocked(recipient, at)
}

// Notify fires and removes every alarm due at or before now. It returns the
// number of alarms fired. The dispatcher is called without the lock held.
func (r *Registry) Notify(d Dispatcher, now finance.Timestamp) int {
	type fired struct {
		recipient string
		at        finance.Timestamp
	}

	r.mu.Lock()
	var due []finance.Timestamp
	for t := range r.byTime {
		if t <= now {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	var batch []fired
	for _, t := range due {
		recipients := make([]string, 0, len(r.byTime[t]))
		for id := range r.byTime[t] {
			recipients = append(recipients, id)
		}
		sort.Strings(recipients)
		for _, id := range recipients {
			batch = append(batch, fired{recipient: id, at: t})
			r.removeLocked(id, t)
		}
	}
	r.mu.Unlock()

	for _, f := range batch {
		d.Dispatch(f.recipient, f.at)
	}
	return len(batch)
}

// Next returns the earliest pending alarm time.
func (r *Registry) Next() (finance.Timestamp, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		next  finance.Timestamp
		found bool
	)
	for t := range r.byTime {
		if !found || t < next {
			next, found = t, true
		}
	}
	return next, found
}

// Pending returns the alarm times of a recipient in ascending order.
func (r *Registry) Pending(recipient string) []finance.Timestamp {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]finance.Timestamp, 0, len(r.byID[recipient]))
	for t := range r.byID[recipient] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, recipients := range r.byTime {
		n += len(recipients)
	}
	return n
}

func (r *Registry) addLocked(recipient string, at finance.Timestamp) {
	if r.byTime[at] == nil {
		r.byTime[at] = make(map[string]struct{})
	}
	r.byTime[at][recipient] = struct{}{}

	if r.byID[recipient] == nil {
		r.byID[recipient] = make(map[finance.Timestamp]struct{})
	}
	r.byID[recipient][at] = struct{}{}
}

func (r *Registry) removeLocked(recipient string, at finance.Timestamp) {
	delete(r.byTime[at], recipient)
	if len(r.byTime[at]) == 0 {
		delete(r.byTime, at)
	}
	delete(r.byID[recipient], at)
	if len(r.byID[recipient]) == 0 {
		delete(r.byID, recipient)
	}
}
