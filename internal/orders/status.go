package orders

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceled  Status = "CANCELED"
)

var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCanceled: true}, // hanya dalam grace window, lihat cancel.go
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Rank orders statuses along the lifecycle; every allowed transition goes to a higher rank.
// Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusCreated:
		return 1
	case StatusConfirmed:
		return 2
	case StatusCanceled:
		return 3
	}
	return 0
}
