package reminder

import (
	"sort"
	"sync"
	"time"
)

// Store is the in-memory owner → reminders mapping. Each owner's slice is
// kept sorted by FireAt. Callers only ever see copies.
type Store struct {
	mu      sync.Mutex
	byOwner map[int64][]Reminder
	n       int
}

func NewStore() *Store {
	return &Store{byOwner: map[int64][]Reminder{}}
}

// Insert adds r, replacing any reminder of the same owner with the same id.
// It returns the replaced reminder, if any.
func (s *Store) Insert(r Reminder) (prev Reminder, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, replaced = s.removeLocked(r.OwnerID, r.ID)
	s.insertLocked(r)
	return prev, replaced
}

func (s *Store) insertLocked(r Reminder) {
	list := s.byOwner[r.OwnerID]
	i := sort.Search(len(list), func(i int) bool { return list[i].FireAt.After(r.FireAt) })
	list = append(list, Reminder{})
	copy(list[i+1:], list[i:])
	list[i] = r
	s.byOwner[r.OwnerID] = list
	s.n++
}

// Remove deletes a reminder. Removing a missing id is a no-op.
func (s *Store) Remove(ownerID int64, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.removeLocked(ownerID, id)
	return ok
}

func (s *Store) removeLocked(ownerID int64, id string) (Reminder, bool) {
	list := s.byOwner[ownerID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		r := list[i]
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.byOwner, ownerID)
		} else {
			s.byOwner[ownerID] = list
		}
		s.n--
		return r, true
	}
	return Reminder{}, false
}

func (s *Store) Get(ownerID int64, id string) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byOwner[ownerID] {
		if r.ID == id {
			return r, true
		}
	}
	return Reminder{}, false
}

// Update applies fn to the stored reminder atomically. fn returns false to
// leave the reminder untouched. The updated copy is returned.
func (s *Store) Update(ownerID int64, id string, fn func(r *Reminder) bool) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byOwner[ownerID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		r := list[i]
		if !fn(&r) {
			return list[i], false
		}
		if r.FireAt.Equal(list[i].FireAt) {
			list[i] = r
			return r, true
		}
		s.removeLocked(ownerID, id)
		s.insertLocked(r)
		return r, true
	}
	return Reminder{}, false
}

// ListInRange returns the owner's reminders with from <= FireAt <= to,
// ascending by FireAt.
func (s *Store) ListInRange(ownerID int64, from, to time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, r := range s.byOwner[ownerID] {
		if r.FireAt.Before(from) {
			continue
		}
		if r.FireAt.After(to) {
			break
		}
		out = append(out, r)
	}
	return out
}

// Count is the number of reminders the owner has, in any window.
func (s *Store) Count(ownerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOwner[ownerID])
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Overdue returns reminders in state Scheduled whose FireAt is more than
// grace before now.
func (s *Store) Overdue(now time.Time, grace time.Duration) []Reminder {
	cutoff := now.Add(-grace)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, list := range s.byOwner {
		for _, r := range list {
			if !r.FireAt.Before(cutoff) {
				break
			}
			if r.State == StateScheduled {
				out = append(out, r)
			}
		}
	}
	return out
}
