package weights

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
)

// ExpectedDigests maps each architecture variant to the HMAC-SHA-256 digest
// (hex) its weight file must produce. Populated from a trusted release
// manifest; a zero-value entry means "no known-good release for this
// variant yet" and always fails verification.
type ExpectedDigests map[model.Size]string

// VerifyIntegrity computes SHA-256 over the raw file bytes, then
// HMAC-SHA-256 of that hex digest using sigKey, and compares it against the
// expected digest for size. A
// mismatch or unknown variant means the caller must refuse to load and fall
// back to random initialization.
func VerifyIntegrity(fileBytes []byte, sigKey []byte, size model.Size, expected ExpectedDigests) bool {
	want, ok := expected[size]
	if !ok || want == "" {
		return false
	}
	return hmacDigest(fileBytes, sigKey) == want
}

func hmacDigest(fileBytes []byte, sigKey []byte) string {
	sum := sha256.Sum256(fileBytes)
	hexDigest := hex.EncodeToString(sum[:])

	mac := hmac.New(sha256.New, sigKey)
	mac.Write([]byte(hexDigest))
	return hex.EncodeToString(mac.Sum(nil))
}
