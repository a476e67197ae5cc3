package trace

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// RunCLI runs the line-oriented console interface on stdin/stdout.
func RunCLI(console *Console) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("isaforge trace console - type 'help' for commands")
	fmt.Println()

	for {
		fmt.Print("(isaforge) ")

		if !scanner.Scan() {
			break
		}

		cmdLine := strings.TrimSpace(scanner.Text())
		if cmdLine == "quit" || cmdLine == "q" || cmdLine == "exit" {
			fmt.Println("Exiting trace console...")
			break
		}

		if err := console.ExecuteCommand(cmdLine); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		if output := console.GetOutput(); output != "" {
			fmt.Print(output)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}

// RunTUI runs the full-screen tcell/tview console.
func RunTUI(console *Console) error {
	return NewTUI(console).Run()
}
