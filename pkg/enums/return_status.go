package enums

// ReturnStatus tracks whether a return made it onto the shelf.
type ReturnStatus string

const (
	ReturnStatusCreated ReturnStatus = "created"
	ReturnStatusFailed  ReturnStatus = "failed"
)

// String implements fmt.Stringer.
func (s ReturnStatus) String() string {
	return string(s)
}

func (s ReturnStatus) IsValid() bool {
	return s == ReturnStatusCreated || s == ReturnStatusFailed
}
