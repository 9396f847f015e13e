package chatnode

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cappuch/lib-p2pchat/internal/proto"
	"github.com/cappuch/lib-p2pchat/internal/uiutil"
)

type inboundKind int

const (
	inboundText inboundKind = iota
	inboundFile
)

type inbound struct {
	kind inboundKind
	from proto.NodeID
	at   time.Time

	text string

	name string
	data []byte
}

func (a *App) handleInbound(in inbound) {
	switch in.kind {
	case inboundText:
		a.handleText(in)
	case inboundFile:
		a.handleFile(in)
	}
}

func (a *App) handleText(in inbound) {
	ts := in.at.Format("15:04:05")
	a.ui.Printf("%s[%s]%s %s: %s\n", ansiDim, ts, ansiReset, formatName(in.from), in.text)
}

func (a *App) handleFile(in inbound) {
	log := a.logger.WithFields(logrus.Fields{
		"from": in.from.Short(),
		"name": in.name,
		"size": len(in.data),
	})

	seq, err := a.store.PutFile(in.from, in.name, in.data, in.at)
	if err != nil {
		log.WithError(err).Error("store received file")
		a.ui.Printf("[FILE] %s sent %q but it could not be saved: %v\n", shortID(in.from), in.name, err)
		return
	}
	log.WithField("seq", seq).Info("file received")
	a.ui.Printf("[FILE] #%d %q (%s) from %s\n", seq, in.name, uiutil.HumanSize(len(in.data)), formatName(in.from))
}
