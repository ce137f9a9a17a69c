package utils

import "unsafe"

// Key is the type of context keys set by the gateway.
type Key string

// B2S converts a byte slice to a string without copying. b must not be modified afterwards.
func B2S(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}
