// Package netrc resolves per-host credentials from a netrc-format file.
package netrc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

var (
	// ErrNotFound is returned when no entry matches the requested machine
	// and the file has no default entry.
	ErrNotFound = errors.New("no credential entry for machine")

	// ErrUnreadable is returned when the credential file is missing,
	// malformed, or has permissions that expose it to other users.
	ErrUnreadable = errors.New("credential file unreadable")
)

// Credential is one resolved machine/login/password triple. The password
// doubles as the API token for bearer-style upstreams. Immutable once loaded.
type Credential struct {
	Machine string
	Login   string
	Token   string
}

type entry struct {
	machine  string
	login    string
	password string
}

// Resolve reads the netrc file at path and returns the credential for
// machine, falling back to the file's default entry if present.
// The file must not be readable by group or others.
func Resolve(path, machine string) (Credential, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o077 != 0 {
		return Credential{}, fmt.Errorf("%w: %s is readable by group or others", ErrUnreadable, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	entries, err := parse(f)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	for _, e := range entries {
		if e.machine == machine {
			return Credential{Machine: machine, Login: e.login, Token: e.password}, nil
		}
	}
	for _, e := range entries {
		if e.machine == "default" {
			return Credential{Machine: machine, Login: e.login, Token: e.password}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, machine)
}

// parse tokenizes the netrc grammar: machine/default stanzas with
// login/password/account values, either one token pair per line or a whole
// stanza on one line. macdef bodies run until a blank line and are skipped.
func parse(f *os.File) ([]entry, error) {
	var (
		entries  []entry
		cur      *entry
		inMacdef bool
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if inMacdef {
			if strings.TrimSpace(line) == "" {
				inMacdef = false
			}
			continue
		}

		fields := strings.Fields(line)
	tokens:
		for i := 0; i < len(fields); i++ {
			tok := fields[i]
			switch {
			case strings.HasPrefix(tok, "#"):
				break tokens
			case tok == "machine":
				i++
				if i >= len(fields) {
					return nil, errors.New("machine keyword without a name")
				}
				entries = append(entries, entry{machine: fields[i]})
				cur = &entries[len(entries)-1]
			case tok == "default":
				entries = append(entries, entry{machine: "default"})
				cur = &entries[len(entries)-1]
			case tok == "login" || tok == "password" || tok == "account":
				i++
				if i >= len(fields) {
					return nil, fmt.Errorf("%s keyword without a value", tok)
				}
				if cur == nil {
					return nil, fmt.Errorf("%s before any machine entry", tok)
				}
				switch tok {
				case "login":
					cur.login = fields[i]
				case "password":
					cur.password = fields[i]
				}
				// account values are accepted and ignored
			case tok == "macdef":
				inMacdef = true
				break tokens
			default:
				return nil, fmt.Errorf("unexpected token %q", tok)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
