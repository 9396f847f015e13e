package uiutil

import (
	"fmt"

	"github.com/cappuch/lib-p2pchat/internal/proto"
)

const (
	AnsiReset = "\033[0m"
	AnsiDim   = "\033[2m"
)

var nameColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

func ShortID(id proto.NodeID) string { return id.Short() }

// PickColor maps s to a stable terminal color.
func PickColor(s string) string {
	if s == "" {
		return AnsiReset
	}
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i])
	}
	return nameColors[h%uint32(len(nameColors))]
}

// FormatName renders the short form of id in its color.
func FormatName(id proto.NodeID) string {
	display := ShortID(id)
	return PickColor(display) + display + AnsiReset
}

// HumanSize formats a byte count with a binary unit.
func HumanSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
