package jobs

import "time"

// TaskTypeAvatarDelete は差し替え前のアバター画像を削除するタスクです。
const TaskTypeAvatarDelete = "avatar:delete"

// queueName はクリーンアップ系タスクのキューです。
const queueName = "cleanup"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// AvatarDeletePayload は avatar:delete タスクのペイロードです。
type AvatarDeletePayload struct {
	JobID string `json:"jobId"`
	Path  string `json:"path"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID     string     `json:"jobId"`
	Type      string     `json:"type"`
	OwnerID   string     `json:"ownerId,omitempty"`
	Path      string     `json:"path"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     *ErrorInfo `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
