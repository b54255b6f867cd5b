package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/loxvm/loxvm/debug"
	"github.com/loxvm/loxvm/vm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

// Exit statuses, matching the reference driver's convention.
const (
	ExitOK           = 0
	ExitCompileError = 65
	ExitRuntimeError = 70
)

func App() (app *cobra.Command) {
	app = &cobra.Command{
		Use:   "loxvm [script]",
		Short: "Run the loxvm bytecode interpreter",
		Args:  cobra.MaximumNArgs(1),
	}

	app.Flags().SortFlags = true
	defaultVerbosityStr := "INFO"
	verbosity := app.Flags().StringP("verbosity", "v", defaultVerbosityStr, "Logging verbosity")

	app.Run = func(_ *cobra.Command, args []string) {
		verbosityLvl, err := logrus.ParseLevel(*verbosity)
		if err != nil {
			verbosityLvl, _ = logrus.ParseLevel(defaultVerbosityStr)
		}
		logrus.SetLevel(verbosityLvl)
		logrus.SetFormatter(&easy.Formatter{LogFormat: "//DBG// %msg%\n"})
		debug.DEBUG = verbosityLvl >= logrus.DebugLevel

		var status int
		if len(args) == 1 {
			status = runFile(args[0])
		} else {
			status = repl()
		}
		os.Exit(status)
	}
	return
}

func runFile(path string) int {
	src, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatal(err)
	}

	vm_ := vm.NewVM()
	defer vm_.FreeVM()

	res, err := vm_.Interpret(string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return exitStatus(res)
}

// repl drives an interactive read-eval-print loop using readline for line
// editing and in-memory history, falling back to a plain scanner over stdin
// when readline can't be initialized.
func repl() int {
	vm_ := vm.NewVM()
	defer vm_.FreeVM()

	rl, err := readline.New(">> ")
	if err != nil {
		return replFallback(vm_)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return ExitOK
		}
		if _, err := vm_.Interpret(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func replFallback(vm_ *vm.VM) int {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			return ExitOK
		}
		if _, err := vm_.Interpret(scanner.Text()); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func exitStatus(res vm.InterpretResult) int {
	switch res {
	case vm.ResultCompileError:
		return ExitCompileError
	case vm.ResultRuntimeError:
		return ExitRuntimeError
	default:
		return ExitOK
	}
}
