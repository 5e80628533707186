package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 32-hex-char identifier, prefixed per aggregate
// (usr_, org_, wsp_, prj_, tsk_, cmt_, ntf_, doc_). An empty prefix yields the
// bare hex, used for refresh token material.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
