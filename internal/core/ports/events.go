package ports

// EventPublisher publishes a typed event to interested subscribers.
// The event's dynamic type selects the subscribers.
type EventPublisher interface {
	Publish(event any)
}
