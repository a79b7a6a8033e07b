package domain

import "time"

// Checkpoint is the durable scan position of the observer.
type Checkpoint struct {
	Name              string
	LastCheckedHeight int64
	UpdatedAt         time.Time
}

// HeightWindow is the range of block heights covered by one run.
// Heights in (Min, Max] are scanned; Min itself was the Max of the previous
// successful run.
type HeightWindow struct {
	Min int64
	Max int64
}

// NewHeightWindow bounds the window starting at checkpoint to at most
// maxBlocks heights and never past head. A head below the checkpoint
// yields an empty window instead of a regressing one.
func NewHeightWindow(checkpoint, head, maxBlocks int64) HeightWindow {
	maxHeight := checkpoint + maxBlocks
	if head < maxHeight {
		maxHeight = head
	}
	if maxHeight < checkpoint {
		maxHeight = checkpoint
	}
	return HeightWindow{Min: checkpoint, Max: maxHeight}
}

// Empty reports whether the window contains no heights.
func (w HeightWindow) Empty() bool {
	return w.Max <= w.Min
}

// From is the first height scanned.
func (w HeightWindow) From() int64 {
	return w.Min + 1
}

// Blocks returns the number of heights in the window.
func (w HeightWindow) Blocks() int64 {
	if w.Empty() {
		return 0
	}
	return w.Max - w.Min
}
