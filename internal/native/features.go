package native

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features are the CPU capabilities relevant to randomness and hashing.
type Features struct {
	Arch   string
	RDRAND bool
	RDSEED bool
	AES    bool
	SHA2   bool
}

// DetectFeatures reads the CPU feature flags.
func DetectFeatures() Features {
	f := Features{Arch: runtime.GOARCH}
	switch runtime.GOARCH {
	case "amd64", "386":
		f.RDRAND = cpu.X86.HasRDRAND
		f.RDSEED = cpu.X86.HasRDSEED
		f.AES = cpu.X86.HasAES
	case "arm64":
		f.AES = cpu.ARM64.HasAES
		f.SHA2 = cpu.ARM64.HasSHA2
	}
	return f
}

// HardwareRNG reports whether the CPU has a random number instruction.
func (f Features) HardwareRNG() bool { return f.RDRAND || f.RDSEED }

// List returns the names of the present features.
func (f Features) List() []string {
	var out []string
	if f.RDRAND {
		out = append(out, "rdrand")
	}
	if f.RDSEED {
		out = append(out, "rdseed")
	}
	if f.AES {
		out = append(out, "aes")
	}
	if f.SHA2 {
		out = append(out, "sha2")
	}
	return out
}
