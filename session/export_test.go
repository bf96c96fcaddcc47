package session

var (
	WithClock  = withClock
	WithRandom = withRandom
)
