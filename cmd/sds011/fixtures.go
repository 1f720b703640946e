package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/airquality.report/internal/sds011"
)

// loadFixtures reads one hex frame per line. Blank lines and lines starting
// with # are skipped. Frames are not validated so fixtures can carry noise.
func loadFixtures(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var frames [][]byte
	scan := bufio.NewScanner(f)
	for n := 1; scan.Scan(); n++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b, err := sds011.ParseHex(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		frames = append(frames, b)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in fixtures file %s", path)
	}
	return frames, nil
}
