package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

const defaultKeyBits = 2048

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidState      = errors.New("invalid state")
)

// TokenCipher turns platform access tokens into hex-encoded RSA ciphertext
// ("state") and back. The state is the only session the bridge has.
type TokenCipher struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// NewTokenCipher parses the key pair once. The private key may be a
// passphrase-protected PEM (encrypted PKCS#8, legacy Proc-Type or OpenSSH
// format) or a plain PKCS#1 / PKCS#8 block.
func NewTokenCipher(publicPEM, privatePEM, passphrase []byte) (*TokenCipher, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	priv, err := parsePrivateKey(privatePEM, passphrase)
	if err != nil {
		return nil, err
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 || priv.PublicKey.E != pub.E {
		return nil, fmt.Errorf("%w: does not match public key", ErrInvalidPrivateKey)
	}
	return &TokenCipher{public: pub, private: priv}, nil
}

// Encrypt seals token with PKCS#1 v1.5 padding. Output length is fixed by
// the key modulus.
func (c *TokenCipher) Encrypt(token string) (string, error) {
	buf, err := rsa.EncryptPKCS1v15(rand.Reader, c.public, []byte(token))
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields
// ErrInvalidState and never partial plaintext.
func (c *TokenCipher) Decrypt(state string) (string, error) {
	buf, err := hex.DecodeString(state)
	if err != nil || len(buf) != c.private.Size() {
		return "", ErrInvalidState
	}
	plain, err := rsa.DecryptPKCS1v15(nil, c.private, buf)
	if err != nil {
		return "", ErrInvalidState
	}
	return string(plain), nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPublicKey)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPublicKey, block.Type)
	}
}

func parsePrivateKey(data, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPrivateKey)
	}

	var (
		key any
		err error
	)
	switch {
	case block.Type == "ENCRYPTED PRIVATE KEY":
		// PKCS#8 with PBES2, the OpenSSL 3 default for genrsa -aes256.
		key, err = pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, passphrase)
	//nolint:staticcheck // legacy encrypted PEM is what OpenSSL 1.x -des3/-aes256 emits
	case len(passphrase) > 0 && (x509.IsEncryptedPEMBlock(block) || block.Type == "OPENSSH PRIVATE KEY"):
		key, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	default:
		key, err = ssh.ParseRawPrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
	}
}

// KeyPair is a freshly generated key pair in the PEM forms NewTokenCipher
// accepts.
type KeyPair struct {
	PublicPEM  []byte
	PrivatePEM []byte
}

// GenerateKeyPair creates an RSA key pair. The private key is encrypted
// with passphrase in OpenSSH format.
func GenerateKeyPair(bits int, passphrase []byte) (*KeyPair, error) {
	if bits == 0 {
		bits = defaultKeyBits
	}
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase required")
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	privBlock, err := ssh.MarshalPrivateKeyWithPassphrase(key, "slackbridge", passphrase)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	return &KeyPair{
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		PrivatePEM: pem.EncodeToMemory(privBlock),
	}, nil
}
