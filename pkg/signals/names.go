package signals

import (
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSignal is one past the highest signal number accepted.
const maxSignal = syscall.Signal(65)

// signalNames is the name table used for parsing and printing signals.
var signalNames = map[syscall.Signal]string{
	unix.SIGHUP:    "HUP",
	unix.SIGINT:    "INT",
	unix.SIGQUIT:   "QUIT",
	unix.SIGILL:    "ILL",
	unix.SIGTRAP:   "TRAP",
	unix.SIGABRT:   "ABRT",
	unix.SIGBUS:    "BUS",
	unix.SIGFPE:    "FPE",
	unix.SIGKILL:   "KILL",
	unix.SIGUSR1:   "USR1",
	unix.SIGSEGV:   "SEGV",
	unix.SIGUSR2:   "USR2",
	unix.SIGPIPE:   "PIPE",
	unix.SIGALRM:   "ALRM",
	unix.SIGTERM:   "TERM",
	unix.SIGCHLD:   "CHLD",
	unix.SIGCONT:   "CONT",
	unix.SIGSTOP:   "STOP",
	unix.SIGTSTP:   "TSTP",
	unix.SIGTTIN:   "TTIN",
	unix.SIGTTOU:   "TTOU",
	unix.SIGURG:    "URG",
	unix.SIGXCPU:   "XCPU",
	unix.SIGXFSZ:   "XFSZ",
	unix.SIGVTALRM: "VTALRM",
	unix.SIGPROF:   "PROF",
	unix.SIGWINCH:  "WINCH",
	unix.SIGIO:     "IO",
	unix.SIGSYS:    "SYS",
}

// Name returns the short name of sig ("TERM"), or its number when unnamed.
func Name(sig syscall.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return strconv.Itoa(int(sig))
}

// Parse accepts "TERM", "SIGTERM", "term" or "15".
func Parse(s string) (syscall.Signal, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || syscall.Signal(n) >= maxSignal {
			return 0, false
		}
		return syscall.Signal(n), true
	}
	name := strings.TrimPrefix(strings.ToUpper(s), "SIG")
	for sig, candidate := range signalNames {
		if candidate == name {
			return sig, true
		}
	}
	return 0, false
}

// Names returns the named signals ordered by number.
func Names() []syscall.Signal {
	sigs := make([]syscall.Signal, 0, len(signalNames))
	for sig := range signalNames {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i] < sigs[j] })
	return sigs
}
