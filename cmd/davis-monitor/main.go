// Command davis-monitor opens a DAVIS camera, starts acquisition, and
// renders a live terminal dashboard of per-stream event rates.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"daviscore/internal/config"
	"daviscore/internal/transport"
	"daviscore/internal/tui"
	"daviscore/pkg/davis"
)

func main() {
	serial := flag.String("serial", "", "serial number to put in the device selector (optional; not matched when opening)")
	flag.Parse()

	sel := config.LoadDeviceSelector()
	if *serial != "" {
		sel.SerialNumber = *serial
	}

	logger := log.New(os.Stderr, "davis-monitor: ", log.LstdFlags)

	dev, err := davis.Open(transport.Selector{
		Bus:          sel.Bus,
		Address:      sel.Address,
		SerialNumber: sel.SerialNumber,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "davis-monitor: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	if err := dev.DataStart(); err != nil {
		fmt.Fprintf(os.Stderr, "davis-monitor: %v\n", err)
		os.Exit(1)
	}
	defer dev.DataStop()

	p := tea.NewProgram(tui.New(dev))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "davis-monitor: %v\n", err)
		os.Exit(1)
	}
}
