package metadata

import "time"

// Recording is one persisted capture as listed by the catalog.
type Recording struct {
	ID        string
	Name      string
	Timestamp time.Time
	Path      string
	// PreviewPath is empty when no thumbnail exists.
	PreviewPath string
}
