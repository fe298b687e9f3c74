package batch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is one fetch job inside a Batch.
type Task struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist"`
	Status       TaskStatus `json:"status"`
	Progress     float64    `json:"progress"`
	ErrorMessage string     `json:"error_message"`
	Filename     string     `json:"filename"`
	Filepath     string     `json:"filepath"`
	Duration     int        `json:"duration"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// TagDefaults overrides the configured ID3 defaults for one batch.
type TagDefaults struct {
	Genre       string `json:"genre,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"albumartist,omitempty"`
	Date        string `json:"date,omitempty"`
}

// Options carries the request settings the worker applies after each fetch.
type Options struct {
	AutoTag     bool        `json:"auto_tag"`
	DefaultTags TagDefaults `json:"default_tags"`
}

// Batch is a named, ordered group of tasks tracked as one unit.
//
// Status fields and counters change only through UpdateTaskStatus, MarkStarted,
// Cancel and Resolve.
type Batch struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	URLs           []string   `json:"urls"`
	Tasks          []*Task    `json:"tasks"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	FailedTasks    int        `json:"failed_tasks"`
	Options        Options    `json:"options"`
}

// Summary is the aggregate counter view of a batch.
type Summary struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Pending   int     `json:"pending"`
	Progress  float64 `json:"progress"`
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// New builds a pending batch with one task per url in input order.
func New(id, name string, urls []string, opts Options) *Batch {
	if id == "" {
		id = uuid.NewString()
	}
	created := now()
	b := &Batch{
		ID:        id,
		Name:      name,
		URLs:      append([]string(nil), urls...),
		Tasks:     make([]*Task, 0, len(urls)),
		Status:    StatusPending,
		CreatedAt: created,
		Options:   opts,
	}
	for _, url := range urls {
		b.Tasks = append(b.Tasks, &Task{
			ID:        uuid.NewString(),
			URL:       url,
			Status:    TaskPending,
			CreatedAt: created,
		})
	}
	b.TotalTasks = len(b.Tasks)
	return b
}

// Progress returns the share of tasks that reached a terminal outcome, 0-100.
func (b *Batch) Progress() float64 {
	if b.TotalTasks == 0 {
		return 0
	}
	return float64(b.CompletedTasks+b.FailedTasks) / float64(b.TotalTasks) * 100
}

func (b *Batch) IsRunning() bool   { return b.Status == StatusDownloading }
func (b *Batch) IsCompleted() bool { return b.Status == StatusCompleted }
func (b *Batch) IsFailed() bool    { return b.Status == StatusFailed }

// Summary reports the counters.
func (b *Batch) Summary() Summary {
	return Summary{
		Total:     b.TotalTasks,
		Completed: b.CompletedTasks,
		Failed:    b.FailedTasks,
		Pending:   b.TotalTasks - b.CompletedTasks - b.FailedTasks,
		Progress:  b.Progress(),
	}
}

// Task returns the task with the given id or nil.
func (b *Batch) Task(id string) *Task {
	for _, task := range b.Tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.URLs = append([]string(nil), b.URLs...)
	out.StartedAt = cloneTime(b.StartedAt)
	out.CompletedAt = cloneTime(b.CompletedAt)
	out.Tasks = make([]*Task, len(b.Tasks))
	for i, task := range b.Tasks {
		t := *task
		t.CompletedAt = cloneTime(task.CompletedAt)
		out.Tasks[i] = &t
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type batchAlias Batch

// MarshalJSON adds the derived progress and summary fields.
func (b *Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		*batchAlias
		Progress float64 `json:"progress"`
		Summary  Summary `json:"summary"`
	}{
		batchAlias: (*batchAlias)(b),
		Progress:   b.Progress(),
		Summary:    b.Summary(),
	})
}

// UnmarshalJSON restores a batch and normalizes missing values from older
// records.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var alias batchAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*b = Batch(alias)
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.Tasks == nil {
		b.Tasks = []*Task{}
	}
	for _, task := range b.Tasks {
		if task.Status == "" {
			task.Status = TaskPending
		}
	}
	if b.TotalTasks == 0 {
		b.TotalTasks = len(b.Tasks)
	}
	return nil
}
