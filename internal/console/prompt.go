package console

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// WritePrompt writes a "> " prompt to w, but only when w is backed by an
// interactive terminal. Piping emberchaind's stdin from a script or test
// harness should not pollute output with prompt characters.
func WritePrompt(w io.Writer) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return
	}
	fmt.Fprint(w, "> ")
}
