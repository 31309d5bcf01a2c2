package config

import (
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

// SystemInfo reports the host kernel name, release, and architecture.
func SystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = trimNulls(utsname.Sysname[:])
		osversion = trimNulls(utsname.Release[:])
		arch = trimNulls(utsname.Machine[:])
	}
	ncpus = runtime.NumCPU()
	return
}

func trimNulls(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}
