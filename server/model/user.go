package model

// UserId is the GitHub account id of the integration owner, in decimal string form.
type UserId string

func (u UserId) String() string {
	return string(u)
}
