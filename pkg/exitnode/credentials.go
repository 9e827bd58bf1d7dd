package exitnode

import (
	"crypto/rand"
	"math/big"

	"github.com/gravitational/trace"
)

const (
	credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	credentialHalfLen  = 15
)

// GenerateCredentials returns a fresh "user:password" chisel auth string.
// Each half is credentialHalfLen characters drawn from a CSPRNG.
func GenerateCredentials() (string, error) {
	user, err := randomString(credentialHalfLen)
	if err != nil {
		return "", trace.Wrap(err)
	}

	password, err := randomString(credentialHalfLen)
	if err != nil {
		return "", trace.Wrap(err)
	}

	return user + ":" + password, nil
}

func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(credentialAlphabet)))
	buf := make([]byte, n)

	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}

		buf[i] = credentialAlphabet[idx.Int64()]
	}

	return string(buf), nil
}
