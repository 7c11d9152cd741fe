package backup

import (
	"io"
	"os"

	"github.com/corosback/models"
)

// writeFileAtomic writes to path through a sibling temp file that is
// fsynced and renamed into place only after a complete write. An
// interrupted write leaves at worst a *.tmp file, never a truncated file
// at the final path.
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return &models.FSError{Path: tmp, Err: err}
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &models.FSError{Path: tmp, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &models.FSError{Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &models.FSError{Path: tmp, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &models.FSError{Path: path, Err: err}
	}
	return nil
}
