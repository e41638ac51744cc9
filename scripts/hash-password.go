// Prints a bcrypt hash for REVIEWER_TOKEN_HASH. With no argument a fresh
// reviewer token is generated and printed to stderr.
package main

import (
	"fmt"
	"os"

	"github.com/vairify/vaicheck-server-go/internal/util"
)

func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		generated, err := util.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		token = generated
		fmt.Fprintf(os.Stderr, "reviewer token: %s\n", token)
	}

	hash, err := util.HashPassword(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
