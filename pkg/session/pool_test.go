package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketPool(t *testing.T) {
	p := getPacket()
	require.NotNil(t, p)
	p.SetStreamIndex(3)
	putPacket(p)

	q := getPacket()
	require.NotNil(t, q)
	putPacket(q)
}
