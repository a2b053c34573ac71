package history

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/findings"
)

// redactedKeys are the raw-payload keys secret scanners use for the secret
// material itself; recursively replaced with a placeholder before storage
// (spec §4.3 store-scan step 6).
var redactedKeys = map[string]bool{
	"Raw":            true,
	"RawV2":          true,
	"snippet":        true,
	"lines":          true,
	"secret_value":   true,
	"capture_groups": true, // nested "secret" key handled specially below
}

const redactedPlaceholder = "[REDACTED]"

// redactRaw walks a decoded JSON value, replacing values under the
// configured key names (and capture_groups.secret specifically) with the
// redaction placeholder, recursively through nested objects and arrays.
func redactRaw(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if k == "capture_groups" {
				out[k] = redactCaptureGroups(val)
				continue
			}
			if redactedKeys[k] {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactRaw(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactRaw(val)
		}
		return out
	default:
		return v
	}
}

func redactCaptureGroups(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return redactRaw(v)
	}
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		if k == "secret" {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactRaw(val)
	}
	return out
}

// prepareRawFinding applies (in order) redaction, then either omission or
// plain/encrypted storage of f.Raw, returning the text to store and whether
// it was encrypted.
func prepareRawFinding(f findings.CommonFinding, encryptionKey []byte, omit bool) (string, bool, error) {
	if omit || len(f.Raw) == 0 {
		return "{}", false, nil
	}

	var decoded interface{}
	raw := []byte(f.Raw)
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Not a JSON object/array (e.g. a bare string raw payload): store
		// as-is, redaction does not apply to opaque scalars.
	} else {
		redacted := redactRaw(decoded)
		b, err := json.Marshal(redacted)
		if err != nil {
			return "", false, fmt.Errorf("marshaling redacted raw finding: %w", err)
		}
		raw = b
	}

	if len(encryptionKey) == 0 {
		return string(raw), false, nil
	}

	ciphertext, err := encryptAESGCM(raw, encryptionKey)
	if err != nil {
		return "", false, err
	}
	return ciphertext, true, nil
}

// encryptAESGCM seals plaintext under key (any length; normalizeKey derives
// the AES-256 key), returning a base64-encoded nonce||ciphertext blob.
func encryptAESGCM(plaintext []byte, key []byte) (string, error) {
	key32 := normalizeKey(key)
	block, err := aes.NewCipher(key32)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("initializing GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decryptRaw reverses encryptAESGCM. Returns ErrEncryptionKeyMissing if key
// is empty (spec §9: "surface a clear error if the key is missing at read
// time").
func decryptRaw(ciphertextB64 string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errs.ErrEncryptionKeyMissing
	}
	key32 := normalizeKey(key)
	block, err := aes.NewCipher(key32)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("initializing GCM: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting raw_finding: %w", err)
	}
	return string(plain), nil
}

// normalizeKey derives a 32-byte AES-256 key from arbitrary-length key
// material via SHA-256, matching the "opaque symmetric key, no rotation
// story" treatment in spec §9.
func normalizeKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}
