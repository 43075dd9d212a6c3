package util

import (
	"cmp"
	"os/exec"
)

// ResolveFFmpegPath locates the FFmpeg binary used for process capture on
// macOS and Windows. A configured path must resolve itself; otherwise
// "ffmpeg" is looked up on PATH. It returns "" when FFmpeg is unavailable.
func ResolveFFmpegPath(configured string) string {
	path, err := exec.LookPath(cmp.Or(configured, "ffmpeg"))
	if err != nil {
		return ""
	}
	return path
}
