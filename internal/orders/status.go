package orders

type Status string

// An order row is born PENDING and flips to COMPLETED inside the same
// checkout transaction, once every line's reservation has finalized.
const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true},
	StatusCompleted: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
