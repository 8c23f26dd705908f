package session

import (
	"runtime"
	"sync"

	"github.com/asticode/go-astiav"
)

// packetPool recycles the packets the drain loop writes out of; every
// pooled packet is unreferenced on return and freed by a finalizer once
// the pool drops it.
var packetPool = sync.Pool{
	New: func() any {
		p := astiav.AllocPacket()
		runtime.SetFinalizer(p, func(p *astiav.Packet) {
			p.Free()
		})
		return p
	},
}

func getPacket() *astiav.Packet {
	return packetPool.Get().(*astiav.Packet)
}

func putPacket(p *astiav.Packet) {
	p.Unref()
	packetPool.Put(p)
}
