package display

import (
	"os"

	"golang.org/x/term"

	"github.com/MrWong99/speakdrill/internal/config"
)

// Resolve maps [config.UIAuto] to a concrete mode: the TUI when both in and
// out are terminals other than TERM=dumb, plain output otherwise. Explicit
// modes are returned unchanged.
func Resolve(mode config.UIMode, in, out *os.File) config.UIMode {
	if mode != config.UIAuto && mode != "" {
		return mode
	}
	if in == nil || out == nil || os.Getenv("TERM") == "dumb" {
		return config.UIPlain
	}
	if term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd())) {
		return config.UITUI
	}
	return config.UIPlain
}
