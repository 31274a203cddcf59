package job

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/mycoderisyad/video-downloader-uploader/internal/pubsub"
	"github.com/mycoderisyad/video-downloader-uploader/internal/sync_"
)

type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is a change to a job. Old is nil for EventAdded and New is nil for EventRemoved.
type Event struct {
	Type EventType
	Old  *Job
	New  *Job
}

func (e Event) JobID() string {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

// Store holds jobs. It is safe for concurrent use, but expects each job to have a single writer.
type Store interface {
	// Create stores a new job, assigning its ID (if empty) and timestamps, with status starting.
	Create(initial Job) (Job, error)
	Get(id string) (Job, error)
	Update(id string, p Patch) (Job, error)
	// Delete removes the record only. The caller owns the output file.
	Delete(id string) (Job, error)
	// List returns every job, oldest first.
	List() []Job
	// SweepExpired removes jobs created more than maxAge ago, along with their output files. Expired jobs that are
	// still running are passed to stop (if not nil) first, which must not return until the job's work has ended.
	SweepExpired(maxAge time.Duration, stop func(Job)) ([]Job, error)
	// Subscribe to changes.
	Subscribe() (pubsub.ReceiverCloser[Event], error)
	// SubscribeJob is Subscribe, limited to changes of one job.
	SubscribeJob(id string) (pubsub.ReceiverCloser[Event], error)
	Close()
}

type StoreOption func(*memoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *memoryStore) {
		s.now = now
	}
}

type memoryStore struct {
	jobs   *sync_.RWMutexed[map[string]*Job]
	events pubsub.Publisher[Event]
	now    func() time.Time
}

// NewMemoryStore keeps jobs in process memory; they do not survive a restart.
func NewMemoryStore(opts ...StoreOption) Store {
	s := &memoryStore{
		jobs:   sync_.NewRWMutexed(make(map[string]*Job)),
		events: pubsub.NewPublisher[Event](),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Create(initial Job) (Job, error) {
	j := initial
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := s.now()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = StatusStarting
	}
	err := s.jobs.Locked(func(jobs *map[string]*Job) error {
		if _, exists := (*jobs)[j.ID]; exists {
			return ErrDuplicateID
		}
		stored := j
		(*jobs)[j.ID] = &stored
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	s.events.Send(Event{Type: EventAdded, New: ref(j)})
	return j, nil
}

func (s *memoryStore) Get(id string) (Job, error) {
	var j Job
	err := s.jobs.RLocked(func(jobs *map[string]*Job) error {
		stored, ok := (*jobs)[id]
		if !ok {
			return ErrJobNotFound
		}
		j = *stored
		return nil
	})
	return j, err
}

func (s *memoryStore) Update(id string, p Patch) (Job, error) {
	var old, updated Job
	err := s.jobs.Locked(func(jobs *map[string]*Job) error {
		stored, ok := (*jobs)[id]
		if !ok {
			return ErrJobNotFound
		}
		old = *stored
		next := *stored
		if err := next.Apply(p, s.now()); err != nil {
			return err
		}
		*stored = next
		updated = next
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	s.events.Send(Event{Type: EventUpdated, Old: &old, New: ref(updated)})
	return updated, nil
}

func (s *memoryStore) Delete(id string) (Job, error) {
	var removed Job
	err := s.jobs.Locked(func(jobs *map[string]*Job) error {
		stored, ok := (*jobs)[id]
		if !ok {
			return ErrJobNotFound
		}
		removed = *stored
		delete(*jobs, id)
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	s.events.Send(Event{Type: EventRemoved, Old: ref(removed)})
	return removed, nil
}

func (s *memoryStore) List() []Job {
	var list []Job
	_ = s.jobs.RLocked(func(jobs *map[string]*Job) error {
		list = make([]Job, 0, len(*jobs))
		for _, j := range *jobs {
			list = append(list, *j)
		}
		return nil
	})
	sort.Slice(list, func(a, b int) bool {
		if list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].ID < list[b].ID
		}
		return list[a].CreatedAt.Before(list[b].CreatedAt)
	})
	return list
}

func (s *memoryStore) SweepExpired(maxAge time.Duration, stop func(Job)) ([]Job, error) {
	cutoff := s.now().Add(-maxAge)
	if stop != nil {
		for _, j := range s.List() {
			if j.CreatedAt.Before(cutoff) && j.Status.IsRunning() {
				stop(j)
			}
		}
	}
	var expired []Job
	_ = s.jobs.Locked(func(jobs *map[string]*Job) error {
		for id, j := range *jobs {
			if j.CreatedAt.Before(cutoff) {
				expired = append(expired, *j)
				delete(*jobs, id)
			}
		}
		return nil
	})
	var result error
	for i := range expired {
		j := expired[i]
		s.events.Send(Event{Type: EventRemoved, Old: &j})
		if j.OutputPath == "" {
			continue
		}
		if err := os.Remove(j.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("job %s: %w", j.ID, err))
		}
	}
	return expired, result
}

func (s *memoryStore) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

func (s *memoryStore) SubscribeJob(id string) (pubsub.ReceiverCloser[Event], error) {
	return pubsub.SubscribeFiltered(s.events, pubsub.DefaultSubscriberBufSize, pubsub.KeyFilter(Event.JobID, id))
}

func (s *memoryStore) Close() {
	s.events.Close()
}
