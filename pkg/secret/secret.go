// Package secret sela segredos do emitente (senha do certificado, CSC) antes de gravá-los no banco.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	prefix    = "sb1:"
)

// ErrInvalidKey chave ausente ou com tamanho diferente de 32 bytes.
var ErrInvalidKey = errors.New("secret: chave deve ter 32 bytes (base64)")

// ErrUnsealed texto selado corrompido ou chave incorreta.
var ErrUnsealed = errors.New("secret: não foi possível abrir o segredo")

// Box sela e abre valores com XSalsa20-Poly1305.
type Box struct {
	key [keySize]byte
}

// New recebe a chave em base64 (ex.: FISCAL_SECRET_KEY gerada com `openssl rand -base64 32`).
func New(keyB64 string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal devolve "sb1:" + base64(nonce || caixa).
func (b *Box) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secret: gerar nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverte Seal.
func (b *Box) Open(sealed string) (string, error) {
	if len(sealed) < len(prefix) || sealed[:len(prefix)] != prefix {
		return "", ErrUnsealed
	}
	raw, err := base64.StdEncoding.DecodeString(sealed[len(prefix):])
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrUnsealed
	}
	return string(plain), nil
}
