//go:build !linux

package entropy

func osAdapters() []Adapter { return nil }
