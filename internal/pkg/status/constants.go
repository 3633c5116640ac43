package status

//Status represents job state
type Status int

const (
	// Idle - nothing in flight
	Idle Status = iota + 1
	// Uploading - request sent, no acknowledgment yet
	Uploading
	// Processing - server works on the job
	Processing
	// Ready - final success step
	Ready
	// Error - final failure step
	Error
)

var (
	statusName = map[Status]string{Idle: "IDLE", Uploading: "UPLOADING", Processing: "PROCESSING",
		Ready: "READY", Error: "ERROR"}
	nameStatus = map[string]Status{"IDLE": Idle, "UPLOADING": Uploading, "PROCESSING": Processing,
		"READY": Ready, "ERROR": Error}
)

func (st Status) String() string {
	return statusName[st]
}

// MarshalText writes status name
func (st Status) MarshalText() ([]byte, error) {
	return []byte(st.String()), nil
}

// InFlight returns true for Uploading and Processing
func (st Status) InFlight() bool {
	return st == Uploading || st == Processing
}

// Terminal returns true for Ready and Error
func (st Status) Terminal() bool {
	return st == Ready || st == Error
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}
