// Command davis-host opens a DAVIS camera, starts acquisition, and serves
// the debug/introspection HTTP API over it.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"daviscore/internal/config"
	"daviscore/internal/httpapi"
	"daviscore/internal/transport"
	"daviscore/pkg/davis"
)

func main() {
	addr := flag.String("addr", ":8088", "address to serve the debug API on")
	debug := flag.Bool("debug", false, "run gin in debug mode")
	flag.Parse()

	logger := log.New(os.Stderr, "davis-host: ", log.LstdFlags)
	sel := config.LoadDeviceSelector()

	dev, err := davis.Open(transport.Selector{
		Bus:          sel.Bus,
		Address:      sel.Address,
		SerialNumber: sel.SerialNumber,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "davis-host: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	if err := dev.DataStart(); err != nil {
		fmt.Fprintf(os.Stderr, "davis-host: %v\n", err)
		os.Exit(1)
	}
	defer dev.DataStop()

	mode := gin.ReleaseMode
	if *debug {
		mode = gin.DebugMode
	}
	srv := httpapi.NewServer(dev, mode)

	logger.Printf("serving debug api on %s", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "davis-host: %v\n", err)
		os.Exit(1)
	}
}
