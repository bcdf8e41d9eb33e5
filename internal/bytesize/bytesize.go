// Package bytesize formats byte counts for human consumption in CLI
// output and build summaries.
package bytesize

import "fmt"

// ByteSize represents a size in bytes.
type ByteSize uint64

// Common byte size constants
const (
	B   ByteSize = 1
	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// String returns a human-readable representation of the byte size.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Format renders n as a human-readable byte count. Negative values are
// rendered as "0B".
func Format(n int64) string {
	if n < 0 {
		return "0B"
	}
	return ByteSize(n).String()
}
