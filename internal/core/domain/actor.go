package domain

// ActorID is the stable handle of an upstream chat-bot actor (e.g. "@LEDERDATA_OFC_BOT").
type ActorID string

// Actor is one of the interchangeable lookup bots. Actors are created at startup
// and ordered by Priority; the lowest value is the primary.
type Actor struct {
	ID       ActorID
	Priority int
}

func (a Actor) String() string {
	return string(a.ID)
}
