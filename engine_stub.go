//go:build (!darwin && !linux) || nogst

package gstkit

import "errors"

// OpenEngine is unavailable without the native binding. Program
// against the Engine interface and supply your own implementation, or
// build without the nogst tag on a supported platform.
func OpenEngine() (Engine, error) {
	return nil, errors.New("native engine binding unavailable: built with nogst or on an unsupported platform")
}
