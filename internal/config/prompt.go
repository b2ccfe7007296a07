// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks for credentials that were not configured.
type Prompter struct {
	In  io.Reader
	Out io.Writer
	// ReadPassword reads without echo; nil reads a plain line from In.
	ReadPassword func() ([]byte, error)
}

// TerminalPrompter reads from stdin, masking the password when stdin is
// a terminal.
func TerminalPrompter() Prompter {
	p := Prompter{In: os.Stdin, Out: os.Stderr}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.ReadPassword = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

// Fill prompts for an empty username or password.
func (p Prompter) Fill(c *Cluster) error {
	if c.Username != "" && c.Password != "" {
		return nil
	}
	r := bufio.NewReader(p.In)
	if c.Username == "" {
		fmt.Fprint(p.Out, "Enter the username for SolidFire cluster: ")
		line, err := readLine(r)
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		c.Username = line
	}
	if c.Password == "" {
		fmt.Fprint(p.Out, "Enter the password for SolidFire cluster (not logged): ")
		var (
			line string
			err  error
		)
		if p.ReadPassword != nil {
			var b []byte
			b, err = p.ReadPassword()
			line = strings.TrimSpace(string(b))
			fmt.Fprintln(p.Out)
		} else {
			line, err = readLine(r)
		}
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		c.Password = line
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("cluster username and password are required")
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
