package chatnode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cappuch/lib-p2pchat/internal/config"
	"github.com/cappuch/lib-p2pchat/internal/peers"
	"github.com/cappuch/lib-p2pchat/internal/uiutil"
)

var (
	errNoSuchPeer    = errors.New("no peer matches")
	errAmbiguousPeer = errors.New("peer prefix is ambiguous")
)

func (a *App) readInput(ctx context.Context) {
	sc := bufio.NewScanner(a.cfg.Input)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		a.handleCommand(ctx, line)
	}
}

func (a *App) handleCommand(ctx context.Context, line string) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		a.ui.Println("quitting...")
		a.Quit()

	case "/me":
		id := a.Node.Identity()
		a.ui.Println()
		a.ui.Println("== You ==")
		a.ui.Printf("  ID:         %s\n", id.ID)
		a.ui.Printf("  EncKey:     %s\n", id.EncPub.Hex())
		a.ui.Printf("  SignKey:    %s\n", id.SignPub.Hex())
		a.ui.Printf("  Listen on:  %s\n", a.Node.ListenAddr())
		a.ui.Printf("  Peers:      %d\n", a.Node.PeerCount())
		a.ui.Println()

	case "/export":
		out, err := config.MarshalPeers(a.selfPeer())
		if err != nil {
			a.ui.Printf("export failed: %v\n", err)
			return
		}
		a.ui.Printf("%s", out)

	case "/peers":
		a.printPeers()

	case "/add":
		f := strings.Fields(rest)
		if len(f) != 4 {
			a.ui.Println("usage: /add <id> <encKey> <signKey> <host:port>")
			return
		}
		p, err := config.PeerConfig{ID: f[0], EncKey: f[1], SignKey: f[2], Addr: f[3]}.Peer()
		if err != nil {
			a.ui.Printf("bad peer: %v\n", err)
			return
		}
		if !a.Node.AddPeer(p) {
			a.ui.Println("that is your own id")
			return
		}
		a.ui.Printf("added %s at %s\n", formatName(p.ID), p.Addr())

	case "/say":
		target, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if target == "" || text == "" {
			a.ui.Println("usage: /say <peer> <message>")
			return
		}
		p, err := a.resolvePeer(target)
		if err != nil {
			a.ui.Printf("%v: %s\n", err, target)
			return
		}
		if err := a.Node.SendText(p.ID, text); err != nil {
			a.ui.Printf("send to %s failed: %v\n", shortID(p.ID), err)
			return
		}
		ts := time.Now().Format("15:04:05")
		a.ui.Printf("%s[%s]%s you -> %s: %s\n", ansiDim, ts, ansiReset, formatName(p.ID), text)

	case "/send":
		target, path, _ := strings.Cut(rest, " ")
		path = strings.TrimSpace(path)
		if target == "" || path == "" {
			a.ui.Println("usage: /send <peer> <path>")
			return
		}
		p, err := a.resolvePeer(target)
		if err != nil {
			a.ui.Printf("%v: %s\n", err, target)
			return
		}
		if err := a.Files.SendFile(ctx, p.ID, path, a.cfg.Settings.ChunkSize); err != nil {
			a.ui.Printf("send %s failed: %v\n", path, err)
			return
		}
		a.ui.Printf("[FILE] sent %s to %s\n", path, formatName(p.ID))

	case "/inbox":
		a.printInbox()

	case "/save":
		f := strings.Fields(rest)
		if len(f) != 2 {
			a.ui.Println("usage: /save <n> <path>")
			return
		}
		seq, err := strconv.ParseUint(f[0], 10, 64)
		if err != nil {
			a.ui.Printf("bad inbox number: %v\n", err)
			return
		}
		e, data, err := a.store.ReadFile(seq)
		if err != nil {
			a.ui.Printf("inbox #%d: %v\n", seq, err)
			return
		}
		if err := os.WriteFile(f[1], data, 0o600); err != nil {
			a.ui.Printf("write %s: %v\n", f[1], err)
			return
		}
		a.ui.Printf("saved %q (%s) to %s\n", e.Name, uiutil.HumanSize(e.Size), f[1])

	case "/rm":
		seq, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			a.ui.Println("usage: /rm <n>")
			return
		}
		if err := a.store.DeleteFile(seq); err != nil {
			a.ui.Printf("inbox #%d: %v\n", seq, err)
			return
		}
		a.ui.Printf("deleted #%d\n", seq)

	case "/stats":
		a.printStats()

	case "/help":
		PrintCommands(a.ui)

	default:
		a.ui.Println("unknown command")
		PrintCommands(a.ui)
	}
}

func (a *App) printPeers() {
	ps := a.Node.Peers()
	if len(ps) == 0 {
		a.ui.Println("no known peers")
		return
	}

	a.ui.Println()
	a.ui.Println("Known peers:")
	a.ui.Printf("%-10s  %-22s  %s\n", "ID", "ADDR", "LAST SEEN")
	a.ui.Printf("%-10s  %-22s  %s\n", "--", "----", "---------")
	for _, p := range ps {
		addr := p.Addr()
		if addr == "" {
			addr = "-"
		}
		seen := "static"
		if !p.LastSeen.IsZero() {
			seen = time.Since(p.LastSeen).Truncate(time.Second).String() + " ago"
		}
		// Pad on the plain id; the color codes would throw the width off.
		pad := strings.Repeat(" ", 10-len(shortID(p.ID)))
		a.ui.Printf("%s%s  %-22s  %s\n", formatName(p.ID), pad, addr, seen)
	}
	a.ui.Println()
}

func (a *App) printInbox() {
	entries, err := a.store.ListFiles(time.Time{}, 0)
	if err != nil {
		a.ui.Printf("inbox: %v\n", err)
		return
	}
	if len(entries) == 0 {
		a.ui.Println("inbox is empty")
		return
	}
	a.ui.Println()
	a.ui.Printf("%-5s  %-10s  %-10s  %-20s  %s\n", "#", "FROM", "SIZE", "RECEIVED", "NAME")
	for _, e := range entries {
		a.ui.Printf("%-5d  %-10s  %-10s  %-20s  %s\n",
			e.Seq, shortID(e.From), uiutil.HumanSize(e.Size),
			e.ReceivedAt.Local().Format("2006-01-02 15:04:05"), e.Name)
	}
	a.ui.Println()
}

func (a *App) printStats() {
	snap := a.Metrics.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	a.ui.Println()
	a.ui.Println("== Routing ==")
	for _, k := range keys {
		a.ui.Printf("  %-26s %d\n", k, snap[k])
	}
	st := a.Files.Stats()
	a.ui.Println("== Transfers ==")
	a.ui.Printf("  %-26s %d\n", "completed", st.Completed)
	a.ui.Printf("  %-26s %d\n", "corrupt", st.Corrupt)
	a.ui.Printf("  %-26s %d\n", "duplicates", st.Duplicates)
	a.ui.Printf("  %-26s %d\n", "rejected", st.Rejected)
	a.ui.Printf("  %-26s %d\n", "pending", a.Files.Pending())
	a.ui.Println()
}

// resolvePeer finds the single known peer whose hex id starts with prefix.
func (a *App) resolvePeer(prefix string) (peers.Peer, error) {
	prefix = strings.ToLower(prefix)
	var (
		found peers.Peer
		n     int
	)
	for _, p := range a.Node.Peers() {
		if strings.HasPrefix(p.ID.Hex(), prefix) {
			found = p
			n++
		}
	}
	switch n {
	case 0:
		return peers.Peer{}, errNoSuchPeer
	case 1:
		return found, nil
	default:
		return peers.Peer{}, fmt.Errorf("%w (%d matches)", errAmbiguousPeer, n)
	}
}

// selfPeer is this node as another node would configure it. A wildcard bind
// is advertised as loopback.
func (a *App) selfPeer() peers.Peer {
	id := a.Node.Identity()
	addr := a.Node.ListenAddr()
	ip := addr.IP
	if ip == "" || net.ParseIP(ip).IsUnspecified() {
		ip = "127.0.0.1"
	}
	return peers.Peer{ID: id.ID, EncKey: id.EncPub, SignKey: id.SignPub, IP: ip, Port: addr.Port}
}
