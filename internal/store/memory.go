package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

// InMemoryStore is a simple in-memory store for customer records, used in tests
// and when no DSN is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	customers map[string]models.Customer
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{customers: make(map[string]models.Customer)}
}

func (s *InMemoryStore) GetOrCreate(ctx context.Context, phone, defaultName string, now time.Time) (models.Customer, error) {
	if phone == "" {
		return models.Customer{}, models.ErrEmptyPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		c = models.NewCustomer(phone, defaultName, now)
		s.customers[phone] = c
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) Get(ctx context.Context, phone string) (models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, phone string, fn UpdateFunc) (models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	working := c.Clone()
	if err := fn(&working); err != nil {
		return models.Customer{}, err
	}
	s.customers[phone] = working
	return working.Clone(), nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

// Put stores c as-is, replacing any existing record. Intended for seeding tests.
func (s *InMemoryStore) Put(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.Phone] = c.Clone()
}

func (s *InMemoryStore) Close() error { return nil }
