// authcap is the supervised credential capture CLI.
package main

import (
	"os"

	"github.com/steveyegge/authcap/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
