package pipeline

type State int32

const (
	StateSubscribing State = iota
	StateProcessing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateProcessing:
		return "processing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
