package chatnode

import (
	"io"

	"github.com/cappuch/lib-p2pchat/internal/config"
	"github.com/cappuch/lib-p2pchat/internal/netx"
)

type Config struct {
	Settings  config.Config
	Network   netx.Network // nil means a UDP socket
	Store     Store
	PeersFile string    // optional YAML peers list read at start
	Input     io.Reader // nil means os.Stdin
	Output    io.Writer // nil means os.Stdout
	Color     bool      // keep ANSI colors in output
}
