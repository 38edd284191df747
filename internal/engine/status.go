package engine

// Status is the engine-side state of a managed container.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStarting Status = "starting"
	StatusStopped  Status = "stopped"
	StatusMissing  Status = "missing"
	StatusError    Status = "error"
	StatusUnknown  Status = "unknown"
)

func dockerToStatus(dockerStatus string) Status {
	switch dockerStatus {
	case "running":
		return StatusRunning
	case "exited", "dead", "paused":
		return StatusStopped
	case "created", "restarting":
		return StatusStarting
	case "removing":
		return StatusMissing
	default:
		return StatusError
	}
}
