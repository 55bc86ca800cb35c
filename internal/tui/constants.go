package tui

const (
	// Layout
	DefaultWidth     = 80
	MinProgressWidth = 20
	NameColumnWidth  = 36
	DefaultPaddingX  = 1
	DefaultPaddingY  = 0

	// Short ids shown next to names
	ShortIDLength = 8
)
