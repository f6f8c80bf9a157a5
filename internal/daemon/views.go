package daemon

import (
	"time"

	"shortreel/internal/queue"
	"shortreel/internal/scoring"
	"shortreel/internal/stageexec"
)

// ItemView is the wire representation of a work item.
type ItemView struct {
	ID            int64          `json:"id"`
	UUID          string         `json:"uuid"`
	ChannelID     string         `json:"channel_id"`
	ScheduledSlot time.Time      `json:"scheduled_slot"`
	Stage         string         `json:"stage"`
	Status        string         `json:"status"`
	Attempts      map[string]int `json:"attempts,omitempty"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Topic         string         `json:"topic,omitempty"`
	PublishID     string         `json:"publish_id,omitempty"`
	PublishURL    string         `json:"publish_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ItemListResponse wraps an item listing.
type ItemListResponse struct {
	Items []ItemView `json:"items"`
}

// WeightsResponse wraps a scoring model report.
type WeightsResponse struct {
	Weights []scoring.FeatureWeight `json:"weights"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusView is the wire representation of daemon status.
type StatusView struct {
	Running      bool                       `json:"running"`
	PID          int                        `json:"pid"`
	QueueDBPath  string                     `json:"queue_db_path"`
	LockFilePath string                     `json:"lock_file_path"`
	LastError    string                     `json:"last_error,omitempty"`
	CreatedToday int                        `json:"created_today"`
	DailyRunCap  int                        `json:"daily_run_cap"`
	Queue        QueueStatsView             `json:"queue"`
	Stages       map[string]StageHealthView `json:"stages"`
	Breakers     []stageexec.BreakerStatus  `json:"breakers,omitempty"`
}

// QueueStatsView mirrors queue.Stats for the wire.
type QueueStatsView struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Succeeded int `json:"succeeded"`
}

// StageHealthView mirrors stage.Health for the wire.
type StageHealthView struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// NewItemView converts a stored work item into its wire form. The CLI uses
// the same conversion when it reads the store directly.
func NewItemView(item *queue.Item) ItemView {
	view := ItemView{
		ID:            item.ID,
		UUID:          item.UUID,
		ChannelID:     item.ChannelID,
		ScheduledSlot: item.ScheduledSlot,
		Stage:         string(item.Stage),
		Status:        string(item.Status),
		NextRetryAt:   item.NextRetryAt,
		DryRun:        item.DryRun,
		LastError:     item.LastError,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
	if len(item.Attempts) > 0 {
		view.Attempts = make(map[string]int, len(item.Attempts))
		for stage, count := range item.Attempts {
			view.Attempts[string(stage)] = count
		}
	}
	if topic := item.Payload.Topic; topic != nil {
		view.Topic = topic.Title
	}
	if publish := item.Payload.Publish; publish != nil {
		view.PublishID = publish.PublishID
		view.PublishURL = publish.URL
	}
	return view
}

// NewStatusView converts a daemon status snapshot into its wire form.
func NewStatusView(status Status) StatusView {
	view := StatusView{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		LastError:    status.Workflow.LastError,
		CreatedToday: status.Workflow.CreatedToday,
		DailyRunCap:  status.Workflow.DailyRunCap,
		Queue: QueueStatsView{
			Total:     status.Workflow.QueueStats.Total,
			Pending:   status.Workflow.QueueStats.Pending,
			Running:   status.Workflow.QueueStats.Running,
			Failed:    status.Workflow.QueueStats.Failed,
			Cancelled: status.Workflow.QueueStats.Cancelled,
			Succeeded: status.Workflow.QueueStats.Succeeded,
		},
		Breakers: status.Workflow.Breakers,
	}
	view.Stages = make(map[string]StageHealthView, len(status.Workflow.StageHealth))
	for stage, health := range status.Workflow.StageHealth {
		view.Stages[string(stage)] = StageHealthView{Ready: health.Ready, Detail: health.Detail}
	}
	return view
}
