//go:build !linux

package main

import "errors"

func readHost(*platformConfig) error {
	return errors.New("host register access is only supported on linux")
}
