package blade

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"html"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypter seals lazy component payloads so clients can hand them back
// without being able to read or forge them.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AEAD is the default Encrypter, XChaCha20-Poly1305 with a random nonce
// prepended to every ciphertext.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD derives a 256-bit key from secret. An empty secret gets a random
// key.
func NewAEAD(secret []byte) (*AEAD, error) {
	if len(secret) == 0 {
		secret = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	key := sha256.Sum256(secret)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: aead}, nil
}

func (a *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *AEAD) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < a.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:a.aead.NonceSize()], ciphertext[a.aead.NonceSize():]
	return a.aead.Open(nil, nonce, sealed, nil)
}

// lazyPayload is what a deferred component needs to render later: its name
// and the attributes it was called with. Slots are never deferred.
type lazyPayload struct {
	Component  string         `msgpack:"c"`
	Attributes map[string]any `msgpack:"a,omitempty"`
}

func (e *Engine) sealLazy(name string, attrs map[string]any) (string, error) {
	packed, err := msgpack.Marshal(lazyPayload{Component: name, Attributes: attrs})
	if err != nil {
		return "", fmt.Errorf("encode lazy payload for %s: %w", name, err)
	}
	sealed, err := e.encrypter.Encrypt(packed)
	if err != nil {
		return "", fmt.Errorf("seal lazy payload for %s: %w", name, err)
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *Engine) openLazy(token string) (lazyPayload, error) {
	var p lazyPayload
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrLazyPayload, err)
	}
	packed, err := e.encrypter.Decrypt(sealed)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrLazyPayload, err)
	}
	if err := msgpack.Unmarshal(packed, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrLazyPayload, err)
	}
	if p.Component == "" {
		return p, fmt.Errorf("%w: missing component", ErrLazyPayload)
	}
	return p, nil
}

// lazyWrapper is the placeholder a lazy component renders as. The client
// posts data-blade-payload to data-blade-endpoint and swaps in the answer.
func (e *Engine) lazyWrapper(name string, attrs map[string]any) (string, error) {
	token, err := e.sealLazy(name, attrs)
	if err != nil {
		return "", err
	}
	return `<div data-blade-lazy="` + html.EscapeString(name) +
		`" data-blade-payload="` + token +
		`" data-blade-endpoint="` + html.EscapeString(e.config.LazyEndpoint) + `"></div>`, nil
}
