// Package codec decrypts the AES blobs carried in the cloud sync response.
//
// Blobs are AES-128-CBC with an all-zero IV. The plaintext may start with bytes left over
// from a previous protocol frame and may or may not carry PKCS7 padding, so the JSON document
// is located by scanning for the first bracket and cut where its nesting closes.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
)

var zeroIV = make([]byte, aes.BlockSize)

// ParseKey decodes the hex AES key handed out by the cloud login.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != 16 {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Extract decrypts blob and returns the bytes of the JSON document it carries.
func Extract(blob string, key []byte) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, &DecodeError{Reason: ReasonEmpty}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonInvalidCiphertext, Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecodeError{Reason: ReasonInvalidCiphertext}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonInvalidCiphertext, Err: err}
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(plaintext, ciphertext)

	start := bytes.IndexAny(plaintext, "{[")
	if start < 0 {
		return nil, &DecodeError{Reason: ReasonNoJSONStart}
	}
	body := unpad(plaintext[start:])
	text := strings.ToValidUTF8(string(body), "\uFFFD")

	end := closingIndex(text)
	if end < 0 {
		return nil, &DecodeError{Reason: ReasonMalformedJSON}
	}
	return []byte(text[:end]), nil
}

// Decode decrypts blob and unmarshals the JSON document into v.
func Decode(blob string, key []byte, v any) error {
	doc, err := Extract(blob, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return &DecodeError{Reason: ReasonMalformedJSON, Err: err}
	}
	return nil
}

// Encrypt is the inverse of Extract for a well-formed document: PKCS7 pad, zero IV, base64.
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(bytes.Clone(plaintext), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// unpad strips PKCS7 padding only when the trailing bytes are a valid pad.
func unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	p := int(b[len(b)-1])
	if p < 1 || p > aes.BlockSize || p > len(b) {
		return b
	}
	for _, c := range b[len(b)-p:] {
		if int(c) != p {
			return b
		}
	}
	return b[:len(b)-p]
}

// closingIndex returns the index just past the bracket that closes the document
// starting at text[0], or -1 when nesting never returns to zero.
// Brackets inside JSON strings are ignored.
func closingIndex(text string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
