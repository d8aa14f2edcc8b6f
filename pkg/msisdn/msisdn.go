// Package msisdn normalizes Kenyan mobile numbers to the 2547XXXXXXXX /
// 2541XXXXXXXX form the M-Pesa API expects.
package msisdn

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid Kenyan mobile number")

// Normalize accepts 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and
// 2547XXXXXXXX (spaces and dashes ignored).
func Normalize(s string) (string, error) {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	n := strings.TrimPrefix(r.Replace(strings.TrimSpace(s)), "+")

	switch {
	case len(n) == 12 && strings.HasPrefix(n, "254"):
		n = n[3:]
	case len(n) == 10 && n[0] == '0':
		n = n[1:]
	}
	if len(n) != 9 || (n[0] != '7' && n[0] != '1') {
		return "", ErrInvalid
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return "", ErrInvalid
		}
	}
	return "254" + n, nil
}

// Valid reports whether s normalizes.
func Valid(s string) bool {
	_, err := Normalize(s)
	return err == nil
}
