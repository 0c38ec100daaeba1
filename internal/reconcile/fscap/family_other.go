//go:build !darwin

package fscap

func isDarwin() bool { return false }
