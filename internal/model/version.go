package model

// Version constants for the persisted layout and the client.
const (
	// SchemaVersion is the version of the persisted aggregate/journal layout.
	SchemaVersion = "1"

	// ClientVersion is the fieldsync client version, sent as User-Agent.
	ClientVersion = "0.1.0"
)
