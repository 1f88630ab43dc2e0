package byteshuman

import (
	"testing"

	"github.com/function61/gokit/assert"
)

func TestHumanize(t *testing.T) {
	for _, tc := range []struct {
		input  uint64
		output string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 kiB"},
		{1536, "1.50 kiB"},
		{1048576, "1.00 MiB"},
		{1610612736, "1.50 GiB"},
		{1099511627776, "1.00 TiB"},
		{1125899906842624, "1.00 PiB"},
		{1152921504606846976, "1024.00 PiB"},
	} {
		t.Run(tc.output, func(t *testing.T) {
			assert.EqualString(t, Humanize(tc.input), tc.output)
		})
	}
}
