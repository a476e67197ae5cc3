// Command isaforge loads an ISA description, compiles it into a machine
// description, and either runs a block of encoded instructions through
// an interactive trace console or serves them over a websocket relay
// for remote viewers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmercer/isaforge/config"
	"github.com/jmercer/isaforge/core"
	"github.com/jmercer/isaforge/isa"
	"github.com/jmercer/isaforge/machine"
	"github.com/jmercer/isaforge/semantics"
	"github.com/jmercer/isaforge/trace"
	"github.com/jmercer/isaforge/traceserver"
)

// Version is set at build time with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		tuiMode     = flag.Bool("tui", false, "Start the interactive trace console")
		relayMode   = flag.Bool("relay", false, "Start the websocket trace relay")
		relayPort   = flag.Int("port", 0, "Relay listen port (default: from config)")
		space       = flag.String("space", "", "Decode space to execute instructions in (default: first logic space)")
		configPath  = flag.String("config", "", "Path to a config.toml file (default: platform config dir)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("isaforge %s\n", Version)
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if flag.NArg() == 0 {
		printHelp()
		os.Exit(0)
	}
	coredefPath := flag.Arg(0)

	desc, err := compileCoredef(coredefPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", coredefPath, err)
		os.Exit(1)
	}

	decodeSpace := *space
	if decodeSpace == "" {
		decodeSpace = firstLogicSpace(desc)
	}
	if decodeSpace == "" {
		fmt.Fprintln(os.Stderr, "Error: no logic space declared, and -space not given")
		os.Exit(1)
	}

	harness, err := semantics.NewHarness(desc, core.SoftwareHost{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building execution harness: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *relayMode:
		runRelay(harness, decodeSpace, cfg, *relayPort)
	case *tuiMode:
		runTUI(harness, decodeSpace)
	default:
		runConsole(harness, decodeSpace)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func compileCoredef(path string) (*machine.Description, error) {
	comp, bag := isa.NewLoader(nil).LoadCoredef(path)
	if bag.HasErrors() {
		return nil, fmt.Errorf("load:\n%s", bag.Error())
	}
	if vbag := isa.Validate(comp); vbag.HasErrors() {
		return nil, fmt.Errorf("validate:\n%s", vbag.Error())
	}
	desc, mbag := machine.Compile(comp)
	if mbag.HasErrors() {
		return nil, fmt.Errorf("compile:\n%s", mbag.Error())
	}
	return desc, nil
}

func firstLogicSpace(desc *machine.Description) string {
	for _, name := range desc.SpaceOrder {
		if desc.Spaces[name].Kind == isa.SpaceLogic {
			return name
		}
	}
	return ""
}

func runConsole(harness *semantics.Harness, space string) {
	console := trace.NewConsole(harness, space)
	if err := trace.RunCLI(console); err != nil {
		fmt.Fprintf(os.Stderr, "Console error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(harness *semantics.Harness, space string) {
	console := trace.NewConsole(harness, space)
	if err := trace.RunTUI(console); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
}

func runRelay(harness *semantics.Harness, space string, cfg *config.Config, portFlag int) {
	port := portFlag
	if port == 0 {
		port = parsePort(cfg.Relay.ListenAddr, 8787)
	}

	server := traceserver.NewServer(port)
	server.RegisterSession("default", space, harness)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "relay error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-sigChan
	fmt.Println("\nShutting down relay...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		os.Exit(1)
	}
}

func parsePort(listenAddr string, fallback int) int {
	var port int
	if _, err := fmt.Sscanf(listenAddr, "127.0.0.1:%d", &port); err == nil && port > 0 {
		return port
	}
	if _, err := fmt.Sscanf(listenAddr, "localhost:%d", &port); err == nil && port > 0 {
		return port
	}
	return fallback
}

func printHelp() {
	fmt.Printf(`isaforge %s

Usage: isaforge [options] <coredef-file>

Options:
  -help          Show this help message
  -version       Show version information
  -space NAME    Decode space to execute instructions in (default: first logic space)
  -config PATH   Path to a config.toml file (default: platform config dir)
  -tui           Start the interactive trace console (tcell/tview)
  -relay         Start the websocket trace relay instead of a console
  -port N        Relay listen port (default: from config, usually 8787)

Examples:
  # Load a core definition and start an interactive line console
  isaforge core.coredef

  # Load a core definition and start the full-screen trace console
  isaforge -tui core.coredef

  # Serve execution over a websocket relay for remote viewers
  isaforge -relay -port 9000 core.coredef

Console commands (once running):
  run <hex-bytes> [base]   decode and execute a block of instructions
  disasm <hex-bytes> [base] decode a block without executing it
  reg <ref> [value]        read or write a register
  registers                list every register's current value
  space [name]             show or switch the active decode space
  help                     show the in-console command list
`, Version)
}
