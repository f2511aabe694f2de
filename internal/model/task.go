package model

// TaskKind is the type of asynchronous AI work.
type TaskKind string

const (
	TaskReply     TaskKind = "reply"
	TaskSummary   TaskKind = "summary"
	TaskOptimize  TaskKind = "optimize"
	TaskTranslate TaskKind = "translate"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskQueued   TaskState = "queued"
	TaskRunning  TaskState = "running"
	TaskResolved TaskState = "resolved"
	TaskFailed   TaskState = "failed"
	TaskCanceled TaskState = "canceled"
)

// TaskKey identifies a unit of work. Translation tasks are keyed by message,
// everything else by conversation.
type TaskKey struct {
	ConversationID string
	Kind           TaskKind
	MessageID      string
}

// String renders the key for logs and singleflight groups.
func (k TaskKey) String() string {
	if k.Kind == TaskTranslate {
		return string(k.Kind) + ":" + k.MessageID
	}
	return string(k.Kind) + ":" + k.ConversationID
}

// Suggestion is one AI-proposed reply.
type Suggestion struct {
	Content    string  `json:"content"`
	Tone       string  `json:"tone,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
