package domain

type JobMode string

const (
	// JobModeSingleShot sends one rendered prompt through the backend's
	// plain completion path.
	JobModeSingleShot JobMode = "single_shot"
	// JobModeChatTurn sends the prompt as the latest turn of a chat
	// exchange.
	JobModeChatTurn JobMode = "chat_turn"
)

// PromptProducer builds prompt text lazily. The scheduler invokes it exactly
// once, at the moment the job is ready to dispatch, so the text reflects the
// freshest world and memory state. Producers run on the scheduler goroutine
// and must be cheap; they may emit one observable side effect.
type PromptProducer func() (string, error)

// JobResult is delivered to a job's callback exactly once. Err is set for
// terminal failures; cancelled jobs get no result at all.
type JobResult struct {
	JobID string
	Text  string
	Err   error
}

// Callback receives a job's terminal result. Invoked on the scheduler
// goroutine; implementations must not block on scheduler operations other
// than Submit and Cancel.
type Callback func(JobResult)

// InferenceJob is one queued unit of backend work. Exactly one of Prompt or
// Producer is used: a non-nil Producer defers prompt construction to
// dispatch time.
type InferenceJob struct {
	ID          string
	Prompt      string
	Producer    PromptProducer
	System      string
	Mode        JobMode
	Temperature float32
	Stop        []string
	OnComplete  Callback
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the backend-facing shape of a dispatched job.
type CompletionRequest struct {
	Prompt      string
	Messages    []Message
	System      string
	Temperature float32
	Stop        []string
}
