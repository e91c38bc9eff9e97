package workflow

// Trigger represents an event that can cause an instance state transition
type Trigger string

const (
	TriggerStart    Trigger = "START"
	TriggerComplete Trigger = "COMPLETE"
	TriggerReject   Trigger = "REJECT"
	TriggerCancel   Trigger = "CANCEL"
	TriggerHold     Trigger = "HOLD"
	TriggerResume   Trigger = "RESUME"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
