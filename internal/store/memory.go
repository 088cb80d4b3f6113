package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It starts with the demo seed.
type MemoryStore struct {
	mu           sync.RWMutex
	tasks        []Task
	clients      []Client
	designs      []Design
	interactions []Interaction
}

func NewMemoryStore() *MemoryStore {
	t, c, d, i := seed(time.Now().UTC())
	return &MemoryStore{tasks: t, clients: c, designs: d, interactions: i}
}

func (s *MemoryStore) ListTasks(context.Context) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks), nil
}

func (s *MemoryStore) CreateTask(_ context.Context, t Task) (Task, error) {
	if err := t.Normalize(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = nextID(len(s.tasks), func(id string) bool { return s.taskIndex(id) >= 0 })
	t.CreatedAt = time.Now().UTC()
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, id string, t Task) (Task, error) {
	if err := t.Normalize(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.taskIndex(id)
	if i < 0 {
		return Task{}, ErrNotFound
	}
	t.ID = id
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.tasks[i].CreatedAt
	}
	s.tasks[i] = t
	return t, nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.taskIndex(id)
	if i < 0 {
		return Task{}, ErrNotFound
	}
	t := s.tasks[i]
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return t, nil
}

func (s *MemoryStore) taskIndex(id string) int {
	return slices.IndexFunc(s.tasks, func(t Task) bool { return t.ID == id })
}

func (s *MemoryStore) ListClients(context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.clients), nil
}

func (s *MemoryStore) CreateClient(_ context.Context, c Client) (Client, error) {
	if err := c.Normalize(); err != nil {
		return Client{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = nextID(len(s.clients), func(id string) bool { return s.clientIndex(id) >= 0 })
	s.clients = append(s.clients, c)
	return c, nil
}

func (s *MemoryStore) DeleteClient(_ context.Context, id string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.clientIndex(id)
	if i < 0 {
		return Client{}, ErrNotFound
	}
	c := s.clients[i]
	s.clients = slices.Delete(s.clients, i, i+1)
	return c, nil
}

func (s *MemoryStore) clientIndex(id string) int {
	return slices.IndexFunc(s.clients, func(c Client) bool { return c.ID == id })
}

func (s *MemoryStore) ListDesigns(context.Context) ([]Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.designs), nil
}

func (s *MemoryStore) ToggleFavorite(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.designs {
		if s.designs[i].ID == id {
			s.designs[i].IsFavorite = !s.designs[i].IsFavorite
			return s.designs[i].IsFavorite, nil
		}
	}
	return false, ErrNotFound
}

func (s *MemoryStore) ListInteractions(context.Context) ([]Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.interactions), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
