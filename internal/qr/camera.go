package qr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirCamera reads frames dropped into a directory by an external capture
// process, e.g. `ffmpeg -i /dev/video0 -vf fps=10 frames/%06d.png`. Each
// file is read once, in name order; a file that still fails to decode after
// maxFrameReads attempts is skipped.
type DirCamera struct {
	dir string

	mu       sync.Mutex
	acquired bool
	seen     map[string]bool
	reads    map[string]int
}

const maxFrameReads = 3

// NewDirCamera creates a camera over dir
func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{dir: dir}
}

// Acquire implements Camera; the directory must exist
func (c *DirCamera) Acquire(context.Context) error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.dir)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired = true
	c.seen = make(map[string]bool)
	c.reads = make(map[string]int)
	return nil
}

// Frame implements Camera. It returns ErrFrameNotReady when no unread frame
// exists or the next one is still being written.
func (c *DirCamera) Frame(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired {
		return nil, ErrCameraUnavailable
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || c.seen[e.Name()] {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrFrameNotReady
	}
	sort.Strings(names)

	name := names[0]
	img, err := decodeFile(filepath.Join(c.dir, name))
	if err != nil {
		// possibly still being written; retried on the next tick
		c.reads[name]++
		if c.reads[name] >= maxFrameReads {
			c.seen[name] = true
		}
		return nil, ErrFrameNotReady
	}
	c.seen[name] = true
	return img, nil
}

// Release implements Camera
func (c *DirCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired = false
	c.seen = nil
	c.reads = nil
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
