package bucket

import (
	"bufio"
	"io"
	"strings"
)

// ReadNames reads one bucket identifier per line. Blank lines and lines
// starting with '#' are skipped; duplicates keep their first position.
// Names are returned unvalidated so invalid ones can still be reported.
func ReadNames(r io.Reader) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out, sc.Err()
}
