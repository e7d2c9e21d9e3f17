package utils

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskSpace summarizes the volume holding a directory.
type DiskSpace struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage reports capacity for the volume containing path.
func DiskUsage(path string) (*DiskSpace, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return nil, err
	}
	return &DiskSpace{
		Path:        stat.Path,
		Total:       stat.Total,
		Free:        stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}
