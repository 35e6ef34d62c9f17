package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is the "Name <email> unixtime zone" triple git attaches to
// every commit and annotated tag, for both the author and committer slots.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Decode parses b as a single signature line's value (everything after the
// "author " or "committer " keyword, not including the trailing newline).
func (s *Signature) Decode(b []byte) {
	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open < 0 || close < 0 || close < open {
		s.Name = string(bytes.TrimSpace(b))
		return
	}
	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : close])

	rest := strings.TrimSpace(string(b[close+1:]))
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return
	}
	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return
	}
	loc := time.UTC
	if len(fields) > 1 {
		if l, err := parseZone(fields[1]); err == nil {
			loc = l
		}
	}
	s.When = time.Unix(sec, 0).In(loc)
}

// Encode writes the signature in git's "Name <email> unixtime zone" form.
func (s Signature) Encode() string {
	when := s.When
	if when.IsZero() {
		when = time.Unix(0, 0).UTC()
	}
	_, offset := when.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", s.Name, s.Email, when.Unix(), sign, offset/3600, (offset%3600)/60)
}

func parseZone(z string) (*time.Location, error) {
	if len(z) != 5 {
		return nil, fmt.Errorf("malformed zone %q", z)
	}
	sign := 1
	switch z[0] {
	case '-':
		sign = -1
	case '+':
	default:
		return nil, fmt.Errorf("malformed zone %q", z)
	}
	h, err := strconv.Atoi(z[1:3])
	if err != nil {
		return nil, err
	}
	m, err := strconv.Atoi(z[3:5])
	if err != nil {
		return nil, err
	}
	return time.FixedZone("", sign*(h*3600+m*60)), nil
}
