//go:build unix

package fetch

import "golang.org/x/sys/unix"

// freeBytes reports the space available to unprivileged users below path.
func freeBytes(path string) (int64, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}
	return int64(fs.Bavail) * int64(fs.Bsize), nil
}
