// Package cachekey derives content-addressed cache keys for embedded documents.
//
// A key is the BLAKE2b-256 digest of a length-prefixed (namespace, content)
// pair, hex encoded. Length prefixing keeps ("ab", "c") and ("a", "bc")
// apart; no delimiter can be forged by either field.
package cachekey

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// Length is the length of every Key in characters.
const Length = blake2b.Size256 * 2

// MaxNamespaceLength bounds namespaces so they remain valid bucket,
// table value and directory names in every store backend.
const MaxNamespaceLength = 64

// Key is a fixed-length opaque identifier for a (namespace, content) pair.
type Key string

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// Valid reports whether k has the shape of an encoded key.
func (k Key) Valid() bool {
	if len(k) != Length {
		return false
	}
	_, err := hex.DecodeString(string(k))
	return err == nil
}

// ErrKeyEncoding is matched by every KeyEncodingError.
var ErrKeyEncoding = errors.New("key encoding error")

// KeyEncodingError reports a namespace that violates the input contract.
type KeyEncodingError struct {
	Namespace string
	Reason    string
}

func (e *KeyEncodingError) Error() string {
	return fmt.Sprintf("invalid namespace %q: %s", e.Namespace, e.Reason)
}

// Is makes errors.Is(err, ErrKeyEncoding) true.
func (e *KeyEncodingError) Is(target error) bool {
	return target == ErrKeyEncoding
}

// Encode derives the key for content within namespace.
// Any content is accepted, including the empty string.
func Encode(namespace, content string) (Key, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized MAC key.
		return "", fmt.Errorf("%w: %v", ErrKeyEncoding, err)
	}
	writeField(h, namespace)
	writeField(h, content)

	return Key(hex.EncodeToString(h.Sum(nil))), nil
}

// MustEncode is like Encode but panics on an invalid namespace.
// Intended for tests and package-level tables.
func MustEncode(namespace, content string) Key {
	k, err := Encode(namespace, content)
	if err != nil {
		panic(err)
	}
	return k
}

// writeField writes uvarint(len(s)) followed by s.
func writeField(w io.Writer, s string) {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(s)))
	w.Write(prefix[:n])
	w.Write([]byte(s))
}

// ValidateNamespace checks that ns is a non-empty, already normalized
// identifier: lowercase ASCII letters, digits, '_' and '-'.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return &KeyEncodingError{Namespace: ns, Reason: "empty"}
	}
	if len(ns) > MaxNamespaceLength {
		return &KeyEncodingError{Namespace: ns, Reason: fmt.Sprintf("longer than %d characters", MaxNamespaceLength)}
	}
	for _, r := range ns {
		if !isNamespaceRune(r) {
			return &KeyEncodingError{Namespace: ns, Reason: fmt.Sprintf("invalid character %q", r)}
		}
	}
	return nil
}

func isNamespaceRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// NormalizeNamespace turns a collection display name such as
// "JWST discoveries" into a namespace ("jwst_discoveries").
// Whitespace runs become '_', other unsupported characters are dropped.
// The result may still be invalid (e.g. empty); callers validate it.
func NormalizeNamespace(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsSpace(r):
			pendingSep = true
		case isNamespaceRune(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	ns := b.String()
	if len(ns) > MaxNamespaceLength {
		ns = strings.TrimRight(ns[:MaxNamespaceLength], "_-")
	}
	return ns
}

// DisplayName renders a namespace for humans: "jwst_discoveries"
// becomes "Jwst Discoveries".
func DisplayName(ns string) string {
	words := strings.Fields(strings.ReplaceAll(ns, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
