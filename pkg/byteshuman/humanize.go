// Formats byte amounts into human readable format
package byteshuman

import (
	"fmt"
)

type unit struct {
	size   uint64
	suffix string
}

var units = []unit{
	{1 << 50, "PiB"},
	{1 << 40, "TiB"},
	{1 << 30, "GiB"},
	{1 << 20, "MiB"},
	{1 << 10, "kiB"},
}

func Humanize(num uint64) string {
	for _, u := range units {
		if num >= u.size {
			return fmt.Sprintf("%.02f %s", float64(num)/float64(u.size), u.suffix)
		}
	}

	return fmt.Sprintf("%d B", num)
}
