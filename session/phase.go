package session

type Phase int

const (
	Ready Phase = iota
	Recording
	Analyzing
	Results
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Analyzing:
		return "analyzing"
	case Results:
		return "results"
	default:
		return "unknown"
	}
}
