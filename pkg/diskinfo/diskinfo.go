// Package diskinfo checks that the durable session store has enough free
// disk space before it is opened.
package diskinfo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// CalculateDirectorySize returns the total size of files within a directory.
func CalculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// CheckFreeSpace verifies every path's volume has at least minimumFreeSpace
// GB available and logs the usage figures.
func CheckFreeSpace(paths []string, minimumFreeSpace int, logger *logrus.Logger) error {
	if len(paths) == 0 {
		return fmt.Errorf("no path provided in configuration")
	}

	for _, path := range paths {
		target := existingAncestor(path)
		usage, err := disk.Usage(target)
		if err != nil {
			return fmt.Errorf("failed to read disk usage for %s: %w", path, err)
		}

		freeGB := float64(usage.Free) / 1e9
		logger.WithFields(logrus.Fields{
			"path":       path,
			"total_gb":   fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"free_gb":    fmt.Sprintf("%.2f", freeGB),
			"used_pct":   fmt.Sprintf("%.1f", usage.UsedPercent),
			"mountpoint": usage.Path,
		}).Debug("Disk usage for session store path")

		if minimumFreeSpace > 0 && freeGB < float64(minimumFreeSpace) {
			return fmt.Errorf("insufficient free space for %s: %.2f GB available, %d GB required", path, freeGB, minimumFreeSpace)
		}
	}
	return nil
}

// existingAncestor walks up from path to the closest directory that exists,
// so usage can be queried before the store directory is created.
func existingAncestor(path string) string {
	current, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for {
		if _, err := os.Stat(current); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}
