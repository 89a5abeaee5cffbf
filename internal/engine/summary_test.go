package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdpLines(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestSummarize(t *testing.T) {
	body := sdpLines(
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"a=mid:0",
		"a=recvonly",
		"a=candidate:1 1 udp 2130706431 192.168.1.2 50000 typ host",
		"a=candidate:2 1 udp 1694498815 203.0.113.7 50000 typ srflx raddr 0.0.0.0 rport 50000",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"c=IN IP4 0.0.0.0",
		"a=mid:1",
	)

	sum, err := summarize(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"video/recvonly", "audio/sendrecv"}, sum.media)
	assert.Equal(t, 2, sum.candidates)
	assert.Equal(t, "media [video/recvonly audio/sendrecv], 2 candidates", sum.String())
}

func TestSummarizeRejectsGarbage(t *testing.T) {
	_, err := summarize("definitely not sdp")
	assert.Error(t, err)
}
