package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPrepare   Status = "prepare"
	StatusCreated   Status = "created"
	StatusDelivery  Status = "delivery"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Forward path is pending → accepted → prepare → created → delivery → completed.
// canceled and refunded can be reached from any non-terminal state.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusAccepted: true, StatusCanceled: true, StatusRefunded: true},
	StatusAccepted:  {StatusPrepare: true, StatusCanceled: true, StatusRefunded: true},
	StatusPrepare:   {StatusCreated: true, StatusCanceled: true, StatusRefunded: true},
	StatusCreated:   {StatusDelivery: true, StatusCanceled: true, StatusRefunded: true},
	StatusDelivery:  {StatusCompleted: true, StatusCanceled: true, StatusRefunded: true},
	StatusCompleted: {},
	StatusCanceled:  {},
	StatusRefunded:  {},
}

var labels = map[Status]string{
	StatusPending:   "Processing",
	StatusAccepted:  "Order accepted",
	StatusPrepare:   "Being prepared",
	StatusCreated:   "Ready for pickup",
	StatusDelivery:  "Handed to courier",
	StatusCanceled:  "Canceled",
	StatusCompleted: "Completed",
	StatusRefunded:  "Refunded",
}

// all statuses in presentation order
var ordered = []Status{
	StatusPending, StatusAccepted, StatusPrepare, StatusCreated,
	StatusDelivery, StatusCanceled, StatusCompleted, StatusRefunded,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Label is the display string for s; unknown values are returned as-is.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
	}
	return st, nil
}

func Statuses() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}
