package loaders

import (
	"io"
	"os"

	"github.com/spaghettifunk/anima-scan/engine/core"
)

// BinaryLoader reads a file verbatim. Nothing is interpreted.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewIOError("open", path, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, core.NewIOError("read", path, err)
	}
	return buf, nil
}
