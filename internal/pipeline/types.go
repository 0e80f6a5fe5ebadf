package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"
)

const (
	// MaxSize is the hard upper bound on any image dimension.
	MaxSize = 10000

	// DebounceDelay is the default quiet window before a settled edit is processed.
	DebounceDelay = 150 * time.Millisecond
)

var (
	ErrNoEncoder = errors.New("no encoder selected")
	ErrClosed    = errors.New("pipeline is closed")
	ErrTooLarge  = errors.New("source image exceeds maximum size")
)

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Rect is the retained region of the resized image.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Rect) Size() Size {
	return Size{r.Width, r.Height}
}

// Scale is pending crop rescale debt left by Resize.
type Scale struct {
	X float64
	Y float64
}

var unitScale = Scale{1, 1}

// Output is emitted once per completed render cycle and once per save.
// Background, BackgroundSize and TargetRect are set only when the cycle
// regenerated the working image.
type Output struct {
	Target         image.Image
	Background     image.Image
	TargetRect     Rect
	BackgroundSize Size
	SizeBytes      int64
	Regenerated    bool
	Err            error
}
