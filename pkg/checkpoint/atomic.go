package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tempMarker = ".tmp-"

// writeFileAtomic replaces path with data via a synced temp file and a
// rename in the same directory. beforeRename, when set, runs after the temp
// file is durable and may abort the write.
func writeFileAtomic(path string, data []byte, beforeRename func(tmp string) error) (op string, err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return "create temp", err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "write temp", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "sync temp", err
	}
	if err := tmp.Close(); err != nil {
		return "close temp", err
	}
	if beforeRename != nil {
		if err := beforeRename(tmpName); err != nil {
			return "before rename", err
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "rename", err
	}
	if err := syncDir(dir); err != nil {
		return "sync dir", err
	}
	return "", nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	return d.Sync()
}

func isTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".") && strings.Contains(name, tempMarker)
}
