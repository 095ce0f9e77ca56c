package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrShortDestination is reported for a file that is smaller than the size
// it is being rewound to, meaning data acknowledged before a crash was lost.
var ErrShortDestination = errors.New("destination shorter than recorded size")

// Rewind truncates each file to its recorded size, dropping whatever a
// previous run appended after its last checkpoint. Files that are missing or
// shorter than recorded are left alone and reported in the returned error.
func Rewind(sizes map[string]int64) error {
	var errs []error
	for path, size := range sizes {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && size == 0 {
				continue
			}
			errs = append(errs, fmt.Errorf("rewind %s: %w", path, err))
			continue
		}
		switch {
		case info.Size() == size:
		case info.Size() < size:
			errs = append(errs, fmt.Errorf("%w: %s has %d bytes, want %d", ErrShortDestination, path, info.Size(), size))
		default:
			if err := os.Truncate(path, size); err != nil {
				errs = append(errs, fmt.Errorf("rewind %s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}
