package nanto

import (
	"debug/elf"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Architecture is the logical target architecture tag used throughout the
// pipeline: manifest target, toolchain descriptors and ELF verification all
// speak this type.
type Architecture string

const (
	ArchAarch64 Architecture = "aarch64"
	ArchArmv7l  Architecture = "armv7l"
	ArchX86_64  Architecture = "x86_64"
	ArchRiscv64 Architecture = "riscv64"
)

var supportedArchitectures = []Architecture{ArchAarch64, ArchArmv7l, ArchX86_64, ArchRiscv64}

// ParseArchitecture normalizes uname/goarch aliases to the canonical tag.
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aarch64", "arm64":
		return ArchAarch64, nil
	case "armv7l", "armhf", "arm":
		return ArchArmv7l, nil
	case "x86_64", "amd64":
		return ArchX86_64, nil
	case "riscv64":
		return ArchRiscv64, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %v)", s, supportedArchitectures)
}

func (a Architecture) String() string { return string(a) }

// elfClass returns the ELF class binaries of this architecture must carry.
func (a Architecture) elfClass() elf.Class {
	if a == ArchArmv7l {
		return elf.ELFCLASS32
	}
	return elf.ELFCLASS64
}

// elfMachine returns the ELF machine field binaries of this architecture must carry.
func (a Architecture) elfMachine() elf.Machine {
	switch a {
	case ArchAarch64:
		return elf.EM_AARCH64
	case ArchArmv7l:
		return elf.EM_ARM
	case ArchX86_64:
		return elf.EM_X86_64
	case ArchRiscv64:
		return elf.EM_RISCV
	}
	return elf.EM_NONE
}

// hostArchitecture detects the machine nanto itself runs on.
// uname is authoritative when present; GOARCH covers the rest.
func hostArchitecture() Architecture {
	if out, err := exec.Command("uname", "-m").Output(); err == nil {
		if a, err := ParseArchitecture(string(out)); err == nil {
			return a
		}
	}
	a, err := ParseArchitecture(runtime.GOARCH)
	if err != nil {
		return ArchX86_64
	}
	return a
}
