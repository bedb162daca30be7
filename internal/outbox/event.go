package outbox

// Kafka topics for scheduling events. One event type per topic.
const (
	TopicAppointmentBooked      = "scheduling.appointment.booked.v1"
	TopicAppointmentConfirmed   = "scheduling.appointment.confirmed.v1"
	TopicAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
	TopicAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	TopicQuoteRequested         = "scheduling.quote.requested.v1"
)

// Event is the domain event envelope written to the outbox table. Key picks
// the Kafka partition, so events for one appointment stay ordered.
type Event struct {
	Topic     string
	Key       string
	EventType string
	Payload   []byte
}
