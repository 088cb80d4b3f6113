// Package store holds the dashboard records: tasks, favourite clients, design
// previews and client interactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrInvalid  = errors.New("store: invalid record")
)

// Priorities accepted for a Task.
var Priorities = []string{"low", "medium", "high", "urgent"}

const (
	defaultPriority = "medium"
	defaultCategory = "general"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	DueDate     *time.Time `json:"due_date"`
	Category    string     `json:"category"`
}

// Normalize fills defaults and checks the priority.
func (t *Task) Normalize() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if t.Priority == "" {
		t.Priority = defaultPriority
	}
	if !slices.Contains(Priorities, t.Priority) {
		return fmt.Errorf("%w: priority %q", ErrInvalid, t.Priority)
	}
	if t.Category == "" {
		t.Category = defaultCategory
	}
	return nil
}

type Client struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone"`
	Company       *string    `json:"company"`
	ProjectsCount int        `json:"projects_count"`
	LastContact   *time.Time `json:"last_contact"`
	AvatarURL     *string    `json:"avatar_url"`
	Tags          []string   `json:"tags"`
}

func (c *Client) Normalize() error {
	if c.Name == "" || c.Email == "" {
		return fmt.Errorf("%w: name and email are required", ErrInvalid)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return nil
}

type Design struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Style       string    `json:"style"`
	RoomType    string    `json:"room_type"`
	CreatedAt   time.Time `json:"created_at"`
	IsFavorite  bool      `json:"is_favorite"`
	ClientID    *string   `json:"client_id"`
	Tags        []string  `json:"tags"`
}

type Interaction struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	InteractionType string    `json:"interaction_type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
	Outcome         *string   `json:"outcome"`
	NextAction      *string   `json:"next_action"`
}

// Store is implemented by MemoryStore and SQLiteStore.
type Store interface {
	ListTasks(ctx context.Context) ([]Task, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, id string, t Task) (Task, error)
	DeleteTask(ctx context.Context, id string) (Task, error)

	ListClients(ctx context.Context) ([]Client, error)
	CreateClient(ctx context.Context, c Client) (Client, error)
	DeleteClient(ctx context.Context, id string) (Client, error)

	ListDesigns(ctx context.Context) ([]Design, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)

	ListInteractions(ctx context.Context) ([]Interaction, error)

	Ping(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalProjects     int     `json:"total_projects"`
	ActiveProjects    int     `json:"active_projects"`
	CompletedProjects int     `json:"completed_projects"`
	TotalClients      int     `json:"total_clients"`
	FavoriteClients   int     `json:"favorite_clients"`
	DesignsGenerated  int     `json:"designs_generated"`
	TasksCompleted    int     `json:"tasks_completed"`
	MonthlyRevenue    float64 `json:"monthly_revenue"`
	WeeklyGrowth      float64 `json:"weekly_growth"`
}

// ComputeStats derives the dashboard summary. Project and revenue figures are
// offsets over the stored records until billing data exists.
func ComputeStats(ctx context.Context, s Store) (Stats, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return Stats{}, err
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return Stats{}, err
	}
	designs, err := s.ListDesigns(ctx)
	if err != nil {
		return Stats{}, err
	}

	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}

	return Stats{
		TotalProjects:     len(designs) + 15,
		ActiveProjects:    8,
		CompletedProjects: 12,
		TotalClients:      len(clients) + 25,
		FavoriteClients:   len(clients),
		DesignsGenerated:  len(designs) + 45,
		TasksCompleted:    completed,
		MonthlyRevenue:    45750.0,
		WeeklyGrowth:      12.5,
	}, nil
}

// nextID returns strconv.Itoa(count+1), or the next free integer when that id
// is taken (possible after deletes).
func nextID(count int, taken func(string) bool) string {
	for n := count + 1; ; n++ {
		id := strconv.Itoa(n)
		if !taken(id) {
			return id
		}
	}
}

func ptr[T any](v T) *T { return &v }
