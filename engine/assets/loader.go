package assets

// Loader reads a persisted asset as raw bytes.
type Loader interface {
	Load(path string) ([]byte, error)
}
