package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval = 500 * time.Millisecond

	// Input Dimensions
	InputWidth = 50

	// Layout Offsets and Padding
	HeaderWidthOffset      = 2
	ProgressBarWidthOffset = 4
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0
	PopupPaddingY          = 2
	PopupPaddingX          = 4

	// Speed graph keeps one sample per tick
	SpeedHistoryLen = 120

	// Notices fade after this long
	NoticeTTL = 4 * time.Second
)
