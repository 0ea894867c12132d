// Command hashpw prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
//
//	hashpw 'my password'
//	echo 'my password' | hashpw
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/iliyamo/flowsurfer-web/internal/config"
	"github.com/iliyamo/flowsurfer-web/internal/utils"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run hashes with the same BCRYPT_COST the server is configured with.
func run(args []string, stdin io.Reader, stdout io.Writer) error {
	plain, err := readPassword(args, stdin)
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(plain, config.Load().BcryptCost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func readPassword(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}
