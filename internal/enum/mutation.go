package enum

type MutationType string

const (
	MutationToggleRead MutationType = "toggleRead"
	MutationToggleStar MutationType = "toggleStar"
	MutationMove       MutationType = "move"
	MutationDelete     MutationType = "delete"
	MutationLabel      MutationType = "label"
)

func (t MutationType) String() string {
	return string(t)
}

func (t MutationType) IsValid() bool {
	switch t {
	case MutationToggleRead, MutationToggleStar, MutationMove, MutationDelete, MutationLabel:
		return true
	}
	return false
}

type MutationStatus string

const (
	MutationPending    MutationStatus = "pending"
	MutationProcessing MutationStatus = "processing"
	MutationCompleted  MutationStatus = "completed"
	MutationFailed     MutationStatus = "failed"
)

func (s MutationStatus) String() string {
	return string(s)
}
