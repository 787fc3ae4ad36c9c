package prompt

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// EnvironmentBlock renders spec.md §4.11's "environment block (cwd,
// platform, date)" section.
func EnvironmentBlock(cwd string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("## Environment\n")
	fmt.Fprintf(&sb, "- cwd: %s\n", cwd)
	fmt.Fprintf(&sb, "- platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "- date: %s\n", now.UTC().Format("2006-01-02 15:04 MST"))
	return sb.String()
}
