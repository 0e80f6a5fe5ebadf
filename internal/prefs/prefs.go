// Package prefs reads and writes the webxrc resource file.
//
// The file is line oriented. Each setting is a parenthesised form such as
//
//	(dialog-layout 10 20 800 600 350)
//	(last-format png8)
//
// Lines starting with '#' and unknown forms are ignored.
package prefs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileName is the resource file name inside the webx config directory.
const FileName = "webxrc"

// Layout is the last window geometry and preview split position.
type Layout struct {
	X      int
	Y      int
	Width  int
	Height int
	Split  int
}

type Prefs struct {
	Layout     Layout
	LastFormat string
}

// DefaultPath returns $XDG_CONFIG_HOME/webx/webxrc or its platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "webx", FileName), nil
}

// Parse reads preferences from r.
func Parse(r io.Reader) (Prefs, error) {
	var p Prefs
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] != '(' {
			continue
		}
		fields := strings.Fields(strings.Trim(line, "()"))
		if len(fields) == 0 {
			continue
		}
		args := fields[1:]
		switch fields[0] {
		case "dialog-layout":
			p.Layout = Layout{
				X:      intArg(args, 0),
				Y:      intArg(args, 1),
				Width:  intArg(args, 2),
				Height: intArg(args, 3),
				Split:  intArg(args, 4),
			}
		case "last-format":
			if len(args) > 0 {
				p.LastFormat = args[0]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Prefs{}, fmt.Errorf("read prefs: %w", err)
	}
	return p, nil
}

// intArg returns args[i] as an int, or 0 when missing or malformed.
func intArg(args []string, i int) int {
	if i >= len(args) {
		return 0
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0
	}
	return n
}

// Write serialises p in resource file form.
func (p Prefs) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# webx resource file\n\n")
	l := p.Layout
	fmt.Fprintf(bw, "(dialog-layout %d %d %d %d %d)\n", l.X, l.Y, l.Width, l.Height, l.Split)
	if p.LastFormat != "" {
		fmt.Fprintf(bw, "(last-format %s)\n", p.LastFormat)
	}
	return bw.Flush()
}

// Load reads the file at path. A missing file yields zero preferences and
// found=false.
func Load(path string) (p Prefs, found bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Prefs{}, false, nil
	}
	if err != nil {
		return Prefs{}, false, err
	}
	defer f.Close()
	p, err = Parse(f)
	return p, err == nil, err
}

// Save writes p to path, creating the parent directory.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("save prefs: %w", err)
	}
	return f.Close()
}
