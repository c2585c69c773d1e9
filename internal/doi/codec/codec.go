// Package codec generates and validates DOI strings.
//
// A generated suffix is the base32 encoding of an unsigned integer using an
// alphabet that excludes ambiguous characters (i, l, o, u), right-padded with
// zeros to a fixed total length of 8 including a trailing mod-37 checksum
// character, and grouped in blocks of 4 separated by a hyphen:
//
//	10.5072/0003-rj0r
//
// Encoding is deterministic for a given number, so fixtures can pin suffixes;
// only checksum validation is guaranteed stable across versions.
package codec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// ErrInvalidPrefix is returned when a prefix does not match the registrant
// prefix grammar (10.NNNN or 10.NNNNN).
var ErrInvalidPrefix = errors.New("no valid prefix found")

// ErrInvalidNumber is returned when a seed number exceeds the encodable bound.
var ErrInvalidNumber = errors.New("number out of range")

// UpperLimit bounds random suffix numbers so the encoded length stays within
// the fixed 8 characters (2^30 - 1).
const UpperLimit = 1<<30 - 1

const (
	alphabet      = "0123456789abcdefghjkmnpqrstvwxyz"
	checkAlphabet = alphabet + "*~$=u"
	encodedLength = 8
	groupSize     = 4
)

var prefixRe = regexp.MustCompile(`^10\.\d{4,5}$`)

// ValidatePrefix reports whether s is a well-formed registrant prefix.
func ValidatePrefix(s string) bool {
	return prefixRe.MatchString(s)
}

// Generate builds a DOI string from a prefix, an optional shoulder and a seed
// number. A non-positive number is replaced with a uniformly random draw below
// UpperLimit. The same prefix, shoulder and positive number always produce the
// same DOI.
func Generate(prefix, shoulder string, number int64) (string, error) {
	if !ValidatePrefix(prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	if number > UpperLimit {
		return "", fmt.Errorf("%w: %d", ErrInvalidNumber, number)
	}
	if number <= 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(UpperLimit))
		if err != nil {
			return "", fmt.Errorf("draw random suffix: %w", err)
		}
		number = n.Int64()
	}
	if shoulder != "" {
		shoulder += "-"
	}
	return prefix + "/" + shoulder + encode(uint64(number)), nil
}

// Validate recomputes the checksum over a DOI's encoded block. The checksum
// covers only the trailing fixed-length block, matching Generate; prefix and
// shoulder characters carry no checksum and are ignored.
func Validate(doi string) bool {
	_, suffix, found := strings.Cut(doi, "/")
	if !found || suffix == "" {
		return false
	}
	s := strings.ReplaceAll(strings.ToLower(suffix), "-", "")
	if len(s) < encodedLength {
		return false
	}
	s = s[len(s)-encodedLength:]
	check := strings.IndexByte(checkAlphabet, s[len(s)-1])
	if check < 0 {
		return false
	}
	var n uint64
	for i := 0; i < len(s)-1; i++ {
		d := strings.IndexByte(alphabet, s[i])
		if d < 0 {
			return false
		}
		n = n*32 + uint64(d)
	}
	return n%37 == uint64(check)
}

// Normalize lowercases a DOI and strips well-known resolver hosts, returning
// the bare prefix/suffix form.
func Normalize(doi string) string {
	d := strings.TrimSpace(strings.ToLower(doi))
	for _, host := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(d, host) {
			d = strings.TrimPrefix(d, host)
			break
		}
	}
	return d
}

// PrefixOf returns the prefix segment of a DOI, or "" when malformed.
func PrefixOf(doi string) string {
	prefix, _, found := strings.Cut(Normalize(doi), "/")
	if !found {
		return ""
	}
	return prefix
}

func encode(n uint64) string {
	digits := make([]byte, 0, encodedLength)
	for v := n; v > 0; v /= 32 {
		digits = append(digits, alphabet[v%32])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	body := string(digits) + string(checkAlphabet[n%37])
	if pad := encodedLength - len(body); pad > 0 {
		body = strings.Repeat("0", pad) + body
	}

	var b strings.Builder
	for i, c := range body {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(c)
	}
	return b.String()
}
