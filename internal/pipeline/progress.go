package pipeline

import (
	"io"
	"os"
)

func progressWriter() io.Writer {
	return os.Stderr
}

func statSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}
