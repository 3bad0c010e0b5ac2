// Package pathbuilder builds the on-disk paths tools write artifacts to:
// screenshots, notepad files, and graph visualization snapshots.
package pathbuilder

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const maxSlugLength = 64

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
var underscoreRun = regexp.MustCompile(`_+`)

// Slug strips everything outside [A-Za-z0-9_-], collapses runs of
// underscores, and truncates to 64 characters.
func Slug(s string) string {
	replaced := unsafeRun.ReplaceAllString(s, "_")
	collapsed := underscoreRun.ReplaceAllString(replaced, "_")
	collapsed = strings.Trim(collapsed, "_")
	if len(collapsed) > maxSlugLength {
		collapsed = collapsed[:maxSlugLength]
	}
	if collapsed == "" {
		collapsed = "artifact"
	}
	return collapsed
}

// Builder resolves artifact paths under a base directory, the same
// base-path-plus-relative-join pattern the teacher's local file storage
// provider uses.
type Builder struct {
	baseDir string
	now     func() time.Time
}

// New creates a Builder rooted at baseDir. An empty baseDir resolves
// paths relative to the process's working directory.
func New(baseDir string) *Builder {
	return &Builder{baseDir: baseDir, now: time.Now}
}

// ScreenshotPath returns the path, under the base directory, take_screenshot
// should write to: temp/screenshots/<slug(topic)>_<timestamp>.png.
func (b *Builder) ScreenshotPath(topic string) string {
	name := fmt.Sprintf("%s_%s.png", Slug(topic), b.now().UTC().Format("20060102_150405"))
	return filepath.Join(b.baseDir, "temp", "screenshots", name)
}

// NotePath returns the path, under the base directory, open_notepad should write to:
// temp/notes/<slug(topic)>_<timestamp>.txt.
func (b *Builder) NotePath(topic string) string {
	name := fmt.Sprintf("%s_%s.txt", Slug(topic), b.now().UTC().Format("20060102_150405"))
	return filepath.Join(b.baseDir, "temp", "notes", name)
}

// GraphSnapshotPath returns the path a visualization snapshot is written
// to after a transition: logs/graphs/<task_id>_<step>_<node_id>.html.
func (b *Builder) GraphSnapshotPath(taskID string, step int, nodeID string) string {
	name := fmt.Sprintf("%s_%d_%s.html", taskID, step, nodeID)
	return filepath.Join(b.baseDir, "logs", "graphs", name)
}
