/*
Package randx provides identifier generation for connections, events, and
anonymous display names.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for random name suffixes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the size of the Base62 character set.
	Base62Len = int64(len(Base62Chars))
)

// ConnectionID generates a UUID v4 string identifying a single live socket.
func ConnectionID() string {
	return uuid.New().String()
}

// EventID generates a UUID v4 string identifying an outbound chat event.
func EventID() string {
	return uuid.New().String()
}

// GuestName generates a fallback display name with a "Guest_" prefix and six
// random Base62 characters, using crypto/rand.
func GuestName() (string, error) {
	const suffixLength = 6
	result := make([]byte, suffixLength)

	for i := 0; i < suffixLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for guest name: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return "Guest_" + string(result), nil
}
