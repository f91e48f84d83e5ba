package engine

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// NativeImage is the result of a native backend's compilation: a runnable
// compiled body. Satisfied by internal/native.Image.
type NativeImage interface {
	// Run executes the compiled body and reports the materialized
	// top-of-stack value (tag/bits) plus any values still left on the
	// working stack below it (under, low index = bottom).
	Run() (tag ValueType, bits uint64, under []int64)
}

// NativeBackend compiles a run of commands starting at some point in a
// ContextBuffer to native code, or returns a cached compilation for the
// same checksum. Satisfied by internal/native.EngineBackend; checksum is
// expected to come from Logic.ChecksumState, which folds in both the
// current ip and the full command stream, so a cache hit implies an
// identical program state.
type NativeBackend interface {
	CompileOrReuse(checksum uint64, cmds []Command) (NativeImage, int, error)
}

// Interpreter is the fetch-execute driver: it owns the Logic/MMU/Linker
// triple and repeatedly dispatches the instruction at the current context's
// IP until the program sets F_EXIT, runs out of instructions, or a command
// faults. Run and RunDebug split the free-run and single-step cases,
// generalized from a single flat instruction array to the MMU's per-buffer
// call stack.
type Interpreter struct {
	log *logrus.Entry

	MMU    *MMU
	Linker *Linker
	CS     *CommandSet
	Logic  *Logic

	// Native, when non-nil, lets RunNative compile straight-line integer
	// runs to machine code instead of interpreting them one command at a
	// time. A nil Native means only Run's plain interpretation is
	// available.
	Native NativeBackend

	// DisableGCDuringRun mirrors run.go's debug.SetGCPercent(-1) dance: Run
	// disables GC for the duration of the instruction loop and restores the
	// previous percentage on return.
	DisableGCDuringRun bool
}

// NewInterpreter wires a complete engine instance: a fresh MMU/Linker/
// CommandSet plus the three Executors, ready for a caller to load a program
// into.
func NewInterpreter(log *logrus.Entry) (*Interpreter, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	mmu := NewMMU(log)
	linker := NewLinker(log)
	cs, err := NewStandardCommandSet()
	if err != nil {
		return nil, err
	}

	intExec := NewIntExecutor()
	floatExec := NewFloatExecutor()
	serviceExec := NewServiceExecutor()
	for _, exec := range []Executor{intExec, floatExec, serviceExec} {
		if err := exec.ResetImplementations(cs); err != nil {
			return nil, err
		}
	}

	logic := NewLogic(mmu, linker, cs, intExec, floatExec, serviceExec, log)

	return &Interpreter{
		log:                log,
		MMU:                mmu,
		Linker:             linker,
		CS:                 cs,
		Logic:              logic,
		DisableGCDuringRun: true,
	}, nil
}

// fetch returns the Command at the current IP, translating an out-of-bounds
// fetch into errProgramFinished — running off the end of code is ordinary
// termination, not a fault.
func (in *Interpreter) fetch() (*Command, error) {
	ctx := in.MMU.Context()
	cmd, err := in.MMU.ACommand(ctx.IP)
	if err != nil {
		if IsKind(err, ErrOutOfBounds) {
			return nil, errProgramFinished
		}
		return nil, err
	}
	return cmd, nil
}

// Step executes exactly one instruction and advances ip unless the
// instruction jumped (F_WAS_JUMP), returning errProgramFinished when the
// program is naturally done. A quit reached with the call stack empty (the
// initial buffer) ends the program; a quit reached mid-call instead
// restores the caller's context and keeps running, so Step reports nil and
// leaves the next instruction to be fetched from the restored ip.
func (in *Interpreter) Step() error {
	ctx := in.MMU.Context()
	if ctx.Flags.Has(FlagExit) {
		if in.MMU.CallStackDepth() == 0 {
			return errProgramFinished
		}
		if err := in.MMU.RestoreContext(); err != nil {
			return err
		}
		return nil
	}

	cmd, err := in.fetch()
	if err != nil {
		return err
	}

	if err := in.Logic.ExecuteSingleCommand(cmd); err != nil {
		return err
	}

	nctx := in.MMU.ContextMut()
	if !nctx.Flags.Has(FlagWasJump) {
		nctx.IP++
	}
	return nil
}

// Run executes the loaded program to completion. A clean termination
// (F_EXIT set, or falling off the end of code) returns nil; any other error
// is a fault and is returned as-is, annotated with ip/mnemonic by Logic.
func (in *Interpreter) Run() (err error) {
	restoreGC := in.disableGC()
	defer restoreGC()
	defer in.recoverToFault(&err)

	for {
		stepErr := in.Step()
		if stepErr == nil {
			continue
		}
		if stepErr == errProgramFinished {
			return nil
		}
		return stepErr
	}
}

// RunNative drives the same fetch-execute loop as Run, but at the start of
// every outer iteration first tries to compile the eligible run starting at
// the current ip to native code and execute that instead of a single
// interpreted Step. This is the "command gate": a native image always
// compiles a prefix, possibly the whole remaining program, possibly just
// one command short of it, and whatever it could not translate is still
// interpreted normally on the next iteration — so a program mixing
// arithmetic with ld/st/jumps/float ops never loses correctness, it only
// loses the speedup on the parts the backend declines.
func (in *Interpreter) RunNative() (err error) {
	if in.Native == nil {
		return in.Run()
	}

	restoreGC := in.disableGC()
	defer restoreGC()
	defer in.recoverToFault(&err)

	for {
		ctx := in.MMU.Context()
		if ctx.Flags.Has(FlagExit) {
			if in.MMU.CallStackDepth() == 0 {
				return nil
			}
			if err := in.MMU.RestoreContext(); err != nil {
				return err
			}
			continue
		}

		ran, nerr := in.tryNativeRun()
		if nerr != nil {
			return nerr
		}
		if ran {
			continue
		}

		stepErr := in.Step()
		if stepErr == nil {
			continue
		}
		if stepErr == errProgramFinished {
			return nil
		}
		return stepErr
	}
}

// tryNativeRun attempts to compile and execute the eligible run starting at
// the current ip. It reports false (with a nil error) whenever native
// execution did not happen for any reason short of a hard fault — an
// occupied integer stack, an out-of-range ip, or the backend declining the
// whole prefix — so the caller always has a well-defined fallback: step the
// interpreter instead.
func (in *Interpreter) tryNativeRun() (bool, error) {
	if in.MMU.IntStackDepth() != 0 {
		return false, nil
	}
	buf, err := in.MMU.CurrentBuffer()
	if err != nil {
		return false, err
	}
	ip := int(in.MMU.Context().IP)
	if ip < 0 || ip >= len(buf.Commands) {
		return false, nil
	}

	checksum, err := in.Logic.ChecksumState()
	if err != nil {
		return false, err
	}
	img, translated, err := in.Native.CompileOrReuse(checksum, buf.Commands[ip:])
	if err != nil || translated == 0 {
		return false, nil
	}

	tag, bits, under := img.Run()

	in.MMU.SelectStack(Integer)
	for _, v := range under {
		in.MMU.StackPush(FromInt(v))
	}
	if tag != Uninitialised {
		in.MMU.StackPush(FromABI(bits, tag))
	}

	ctx := in.MMU.ContextMut()
	ctx.IP += int64(translated)
	if buf.Commands[ip+translated-1].ID == OpQuit {
		ctx.Flags |= FlagExit
	}
	return true, nil
}

func (in *Interpreter) disableGC() func() {
	if !in.DisableGCDuringRun {
		return func() {}
	}
	prior := debug.SetGCPercent(-1)
	return func() { debug.SetGCPercent(prior) }
}

// recoverToFault converts a native panic (out-of-range slice access slipping
// past a bounds check, a nil map, etc.) into an ErrNative EngineError instead
// of crashing the host process.
func (in *Interpreter) recoverToFault(errp *error) {
	if r := recover(); r != nil {
		ctx := in.MMU.Context()
		pcs := make([]uintptr, 64)
		n := runtime.Callers(3, pcs)
		*errp = &EngineError{
			Kind:      ErrNative,
			Message:   fmt.Sprintf("recovered panic: %v", r),
			IP:        int(ctx.IP),
			HasIP:     true,
			Backtrace: pcs[:n],
		}
	}
}

// RunDebug drives a single-step interactive loop over stdin: n/next executes
// one instruction, r/run free-runs to completion or fault, b/break toggles a
// breakpoint on an instruction offset.
func (in *Interpreter) RunDebug(stdin *os.File, stdout *os.File) error {
	reader := bufio.NewReader(stdin)
	fmt.Fprintln(stdout, "Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <ip>: toggle breakpoint at ip\n")

	in.printState(stdout)

	waitForInput := true
	breakpoints := make(map[int64]struct{})
	lastBreak := int64(-1)

	for {
		line := ""
		if waitForInput {
			fmt.Fprint(stdout, "\n-> ")
			line, _ = reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		} else {
			ip := in.MMU.Context().IP
			if _, ok := breakpoints[ip]; ok && lastBreak != ip {
				fmt.Fprintln(stdout, "breakpoint")
				in.printState(stdout)
				waitForInput = true
				lastBreak = ip
				continue
			}
		}

		switch {
		case !waitForInput || line == "n" || line == "next":
			lastBreak = -1
			err := in.Step()
			if waitForInput {
				in.printState(stdout)
			}
			if err != nil {
				if err == errProgramFinished {
					return nil
				}
				fmt.Fprintln(stdout, err)
				return err
			}
		case line == "r" || line == "run":
			waitForInput = false
		case strings.HasPrefix(line, "b"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				fmt.Fprintln(stdout, "usage: break <ip>")
				continue
			}
			n, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Fprintln(stdout, "unknown ip:", err)
				continue
			}
			if _, ok := breakpoints[n]; ok {
				delete(breakpoints, n)
			} else {
				breakpoints[n] = struct{}{}
			}
		}
	}
}

func (in *Interpreter) printState(w *os.File) {
	ctx := in.MMU.Context()
	fmt.Fprintf(w, "ip=%d flags=%d buffer=%d depth=%d\n", ctx.IP, ctx.Flags, ctx.BufferID, ctx.Depth)
}
