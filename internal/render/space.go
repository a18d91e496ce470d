package render

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"reelforge/internal/services"
)

var statfs = unix.Statfs

// checkFreeSpace verifies the staging filesystem has enough headroom before a
// render starts. Running the encoder into a full disk produces truncated
// output that only fails at finalize, so reject up front instead.
func (e *Executor) checkFreeSpace(workspace string) error {
	minBytes := uint64(e.cfg.Scheduler.MinFreeSpaceGiB) * humanize.GiByte
	if minBytes == 0 {
		return nil
	}

	var stat unix.Statfs_t
	if err := statfs(workspace, &stat); err != nil {
		return services.Wrap(services.ErrRender, "render", "preflight", "stat staging filesystem", err)
	}

	available := stat.Bavail * uint64(stat.Bsize)
	if available < minBytes {
		return services.Wrap(services.ErrRender, "render", "preflight",
			fmt.Sprintf("insufficient free space in staging: %s available, %s required",
				humanize.Bytes(available), humanize.Bytes(minBytes)), nil)
	}
	return nil
}
