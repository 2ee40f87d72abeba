package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ____       _                 ____       _       
 |  _ \ _ __(_)_ __ ___   ___ / ___| __ _| |_ ___ 
 | |_) | '__| | '_ ` + "`" + ` _ \ / _ \ |  _ / _` + "`" + ` | __/ _ \
 |  __/| |  | | | | | | |  __/ |_| | (_| | ||  __/
 |_|   |_|  |_|_| |_| |_|\___|\____|\__,_|\__\___|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Local TLS gateway - Version %s\x1b[0m\n\n", Version)
}
