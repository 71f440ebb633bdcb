package iblcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readSidecar parses the whitespace separated integers of an info file.
// The mip count is only present when withMips is set, otherwise it is 1.
// A missing file yields an error matching fs.ErrNotExist.
func readSidecar(path string, withMips bool) (shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return shape{}, err
	}
	fields := strings.Fields(string(data))
	want := 1
	if withMips {
		want = 2
	}
	if len(fields) < want {
		return shape{}, fmt.Errorf("sidecar %s has %d values, want %d", path, len(fields), want)
	}
	s := shape{MipLevels: 1}
	if s.Size, err = strconv.Atoi(fields[0]); err != nil || s.Size <= 0 {
		return shape{}, fmt.Errorf("sidecar %s: invalid size %q", path, fields[0])
	}
	if withMips {
		if s.MipLevels, err = strconv.Atoi(fields[1]); err != nil || s.MipLevels <= 0 {
			return shape{}, fmt.Errorf("sidecar %s: invalid mip count %q", path, fields[1])
		}
	}
	return s, nil
}

func formatSidecar(s shape, withMips bool) string {
	if withMips {
		return fmt.Sprintf("%d %d ", s.Size, s.MipLevels)
	}
	return fmt.Sprintf("%d ", s.Size)
}

// writeFile writes a file through a temporary file in the same directory
// so that readers never see a partial file.
func writeFile(path string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
