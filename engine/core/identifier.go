package core

import "github.com/google/uuid"

// RecordingNamespace seeds the name-based recording identifiers.
var RecordingNamespace = uuid.MustParse("6f1c2a4e-8d3b-4f5a-9c7e-2b1d0a3f4e5c")

// RecordingIDFromName returns an identifier that is stable for a given file name,
// so a recording keeps its ID across catalog reloads.
func RecordingIDFromName(name string) string {
	return uuid.NewSHA1(RecordingNamespace, []byte(name)).String()
}

// NewSessionID tags one sensor session in the logs.
func NewSessionID() string {
	return uuid.NewString()
}
