package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptPassword asks for the password of the named root CA with echo
// disabled.
func promptPassword(issuer string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available to prompt for the %s root CA password", issuer)
	}

	fmt.Fprintf(os.Stderr, "Password for %s root CA: ", issuer)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
