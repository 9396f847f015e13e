package chatnode

import (
	"github.com/cappuch/lib-p2pchat/internal/p2p"
	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/uiutil"
)

func shortID(id proto.NodeID) string    { return uiutil.ShortID(id) }
func formatName(id proto.NodeID) string { return uiutil.FormatName(id) }

const (
	ansiDim   = uiutil.AnsiDim
	ansiReset = uiutil.AnsiReset
)

func PrintBanner(p Printer, n *p2p.Node) {
	p.Println()
	p.Println("Node started.")
	p.Printf("ID:             %s\n", n.ID())
	p.Printf("Addr:           %s\n", n.ListenAddr())
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    /me                                   - prints your info")
	p.Println("    /export                               - print your peers entry for someone else's config")
	p.Println("    /peers                                - show known peers")
	p.Println("    /add <id> <encKey> <signKey> <addr>   - add a peer by hand")
	p.Println("    /say <peer> <message>                 - send a text message (peer = id prefix)")
	p.Println("    /send <peer> <path>                   - send a file")
	p.Println("    /inbox                                - list received files")
	p.Println("    /save <n> <path>                      - write inbox file n to path")
	p.Println("    /rm <n>                               - delete inbox file n")
	p.Println("    /stats                                - routing and transfer counters")
	p.Println("    /quit                                 - exit")
}
