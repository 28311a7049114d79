//go:build !linux

package main

import "errors"

func openEvdevSource(EvdevInputConfig) (LineSource, error) {
	return nil, errors.New("evdev input backend is only available on linux")
}
