package licensekey

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Upper-case alphabet without the look-alikes 0/O and 1/I.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	Prefix      = "LIC"
	groupCount  = 3
	groupLength = 4
)

// Generate returns a fresh key of the form LIC-XXXX-XXXX-XXXX.
func Generate() (string, error) {
	body, err := randomString(groupCount * groupLength)
	if err != nil {
		return "", err
	}
	groups := make([]string, 0, groupCount+1)
	groups = append(groups, Prefix)
	for i := 0; i < groupCount; i++ {
		groups = append(groups, body[i*groupLength:(i+1)*groupLength])
	}
	return strings.Join(groups, "-"), nil
}

// Normalize canonicalizes user-typed keys. Keys from earlier generations keep their shape.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func randomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid key length: %d", length)
	}

	// Rejection sampling keeps the distribution uniform for any alphabet size.
	limit := 256 - 256%len(alphabet)

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}
