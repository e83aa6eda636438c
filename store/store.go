package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
)

const idAttempts = 5

var errIDExhausted = errors.New("could not generate a unique task id")

// Store owns the authoritative task collection and writes it through to a
// Slot after every successful mutation. Tasks are ordered most recent first.
type Store struct {
	mu        sync.Mutex
	slot      Slot
	key       string
	tasks     []*domain.Task
	clock     *domain.Clock
	newID     func() string
	publisher Publisher
	logger    *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithPublisher sets the receiver of change events.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger. The logrus standard logger is used otherwise.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the timestamp source.
func WithClock(c *domain.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator replaces the id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates an empty Store backed by slot. Call Load to read prior state.
func New(slot Slot, opts ...Option) *Store {
	if slot == nil {
		panic("store.New: slot is nil")
	}
	s := &Store{
		slot:   slot,
		key:    DefaultKey,
		clock:  domain.NewClock(nil),
		newID:  newTaskID,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTaskID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Key returns the slot key the collection is stored under.
func (s *Store) Key() string { return s.key }

// Load replaces the in-memory collection with the persisted one. A missing
// key or an unparseable payload yields an empty collection; only slot read
// failures are returned.
func (s *Store) Load(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.key, err)
	}
	s.tasks = nil
	if ok && len(data) > 0 {
		decoded, err := domain.DecodeTasks(data)
		if err != nil {
			s.logger.WithError(err).WithField("key", s.key).Warn("discarding unparseable task payload")
		} else {
			s.tasks = s.sanitize(decoded)
		}
	}
	s.logger.WithFields(log.Fields{"key": s.key, "tasks": len(s.tasks)}).Debug("tasks loaded")
	return s.snapshot(), nil
}

// sanitize drops records that would break id uniqueness or carry a title
// too short to store, and repairs titles, timestamps and priorities so
// loaded data satisfies the model.
func (s *Store) sanitize(decoded []domain.Task) []*domain.Task {
	seen := make(map[string]struct{}, len(decoded))
	out := make([]*domain.Task, 0, len(decoded))
	for i := range decoded {
		t := decoded[i]
		if t.ID == "" {
			s.logger.WithField("index", i).Warn("dropping stored task without id")
			continue
		}
		if _, dup := seen[t.ID]; dup {
			s.logger.WithField("task", t.ID).Warn("dropping stored task with duplicate id")
			continue
		}
		t.Title = domain.NormalizeTitle(t.Title)
		if err := domain.ValidateTitle(t.Title); err != nil {
			s.logger.WithError(err).WithField("task", t.ID).Warn("dropping stored task with invalid title")
			continue
		}
		seen[t.ID] = struct{}{}
		if !t.Priority.Valid() {
			s.logger.WithFields(log.Fields{"task": t.ID, "priority": t.Priority}).Warn("unknown stored priority, using default")
			t.Priority = domain.DefaultPriority
		}
		if t.UpdatedAt < t.CreatedAt {
			t.UpdatedAt = t.CreatedAt
		}
		s.clock.Observe(t.UpdatedAt)
		out = append(out, &t)
	}
	return out
}

// Create validates the input, prepends a new task and persists the collection.
func (s *Store) Create(ctx context.Context, title string, priority domain.Priority) (domain.Task, error) {
	title, priority, err := domain.ValidateInput(title, priority)
	if err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	id, err := s.uniqueID()
	if err != nil {
		s.mu.Unlock()
		return domain.Task{}, err
	}
	now := s.clock.Next()
	t := &domain.Task{
		ID:        id,
		Title:     title,
		Priority:  priority,
		Done:      false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	next := make([]*domain.Task, 0, len(s.tasks)+1)
	next = append(next, t)
	next = append(next, s.tasks...)
	if err := s.persist(ctx, values(next)); err != nil {
		s.mu.Unlock()
		return domain.Task{}, err
	}
	s.tasks = next
	created := *t
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"task": created.ID, "priority": created.Priority}).Debug("task created")
	s.publish(ctx, domain.TaskCreated, created, now)
	return created, nil
}

// Update replaces the title and priority of the task with id. Invalid input
// aborts the whole update. A missing id is a no-op.
func (s *Store) Update(ctx context.Context, id, title string, priority domain.Priority) error {
	title, priority, err := domain.ValidateInput(title, priority)
	if err != nil {
		return err
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.WithField("task", id).Debug("update for unknown task ignored")
		return nil
	}
	updated := *s.tasks[idx]
	updated.Title = title
	updated.Priority = priority
	updated.UpdatedAt = s.clock.Next()

	if err := s.persist(ctx, s.replacing(idx, updated)); err != nil {
		s.mu.Unlock()
		return err
	}
	*s.tasks[idx] = updated
	s.mu.Unlock()

	s.publish(ctx, domain.TaskUpdated, updated, updated.UpdatedAt)
	return nil
}

// ToggleDone flips the completion flag of the task with id. A missing id is
// a no-op.
func (s *Store) ToggleDone(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.WithField("task", id).Debug("toggle for unknown task ignored")
		return nil
	}
	updated := *s.tasks[idx]
	updated.Done = !updated.Done
	updated.UpdatedAt = s.clock.Next()

	if err := s.persist(ctx, s.replacing(idx, updated)); err != nil {
		s.mu.Unlock()
		return err
	}
	*s.tasks[idx] = updated
	s.mu.Unlock()

	evType := domain.TaskReopened
	if updated.Done {
		evType = domain.TaskCompleted
	}
	s.publish(ctx, evType, updated, updated.UpdatedAt)
	return nil
}

// Remove deletes the task with id once confirm approves. It reports whether
// a task was removed; a declined confirmation is not an error.
func (s *Store) Remove(ctx context.Context, id string, confirm Confirmer) (bool, error) {
	if confirm == nil || !confirm.Confirm(ctx, s.removePrompt(id)) {
		return false, nil
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	next := make([]*domain.Task, 0, len(s.tasks))
	for i, t := range s.tasks {
		if i != idx {
			next = append(next, t)
		}
	}
	if err := s.persist(ctx, values(next)); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	removed := *s.tasks[idx]
	s.tasks = next
	ts := s.clock.Next()
	s.mu.Unlock()

	s.publish(ctx, domain.TaskDeleted, removed, ts)
	return true, nil
}

func (s *Store) removePrompt(id string) string {
	if t, ok := s.Get(id); ok {
		return fmt.Sprintf("Delete task %q?", t.Title)
	}
	return "Are you sure you want to delete this task?"
}

// Get returns a copy of the task with id.
func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(id); idx >= 0 {
		return *s.tasks[idx], true
	}
	return domain.Task{}, false
}

// Tasks returns a copy of the collection in store order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// View projects the current collection.
func (s *Store) View(filter domain.Filter, searchTerm string) domain.View {
	return domain.NewView(s.Tasks(), filter, searchTerm)
}

// Stats counts the current collection.
func (s *Store) Stats() domain.Stats {
	return domain.ComputeStats(s.Tasks())
}

func (s *Store) persist(ctx context.Context, tasks []domain.Task) error {
	data, err := domain.EncodeTasks(tasks)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.slot.Set(ctx, s.key, data); err != nil {
		s.logger.WithError(err).WithField("key", s.key).Error("failed to persist tasks")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// publish must be called without s.mu held; publishers may block on I/O.
func (s *Store) publish(ctx context.Context, typ string, t domain.Task, ts int64) {
	if s.publisher == nil {
		return
	}
	ev := domain.NewTaskEvent(typ, t, ts)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"task": t.ID, "event": typ}).Warn("failed to publish task event")
	}
}

func (s *Store) uniqueID() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := s.newID()
		if id != "" && s.indexOf(id) < 0 {
			return id, nil
		}
	}
	return "", errIDExhausted
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) replacing(idx int, t domain.Task) []domain.Task {
	out := values(s.tasks)
	out[idx] = t
	return out
}

func (s *Store) snapshot() []domain.Task {
	return values(s.tasks)
}

func values(tasks []*domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = *t
	}
	return out
}
