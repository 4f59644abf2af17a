package docker

// State is the lifecycle state of a container as seen by the engine.
// The daemon reports richer states (paused, restarting, dead); the engine
// folds them into this binary model.
type State string

const (
	Running State = "running"
	Stopped State = "stopped"
)

// ContainerRecord is one row of the container list. Records are created
// wholesale at ingestion and never edited afterwards.
type ContainerRecord struct {
	ID     string `json:"id"`     // first 12 characters of the daemon ID
	Name   string `json:"name"`   // without the leading "/"
	Image  string `json:"image"`
	Status string `json:"status"` // raw daemon status text, e.g. "Up 2 hours"
	Ports  string `json:"ports"`  // "8080:80, 443" or "--"
	State  State  `json:"state"`
}

// ImageRecord is one row of the image list.
type ImageRecord struct {
	ID         string `json:"id"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	Size       string `json:"size"`
}

// VolumeRecord is one row of the volume list. Volumes have no separate ID;
// Name is the identity.
type VolumeRecord struct {
	Name       string `json:"name"`
	Driver     string `json:"driver"`
	Mountpoint string `json:"mountpoint"`
}

// ResourceEvent is a daemon-side lifecycle event for one of the three
// resource classes the engine tracks.
type ResourceEvent struct {
	Type   string // "container", "image", "volume"
	Action string // start, stop, die, destroy, pull, tag, delete, create, ...
	ID     string
}
