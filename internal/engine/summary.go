package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pion/sdp/v3"
)

// summary is what a human wants to know about a description before relaying
// it: which media it negotiates and whether candidates are embedded.
type summary struct {
	media      []string // "video/recvonly", "audio/sendrecv", ...
	candidates int
}

func (s summary) String() string {
	return fmt.Sprintf("media [%s], %d candidates", strings.Join(s.media, " "), s.candidates)
}

var directions = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

func summarize(body string) (summary, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(body)); err != nil {
		return summary{}, err
	}

	var sum summary
	for _, md := range parsed.MediaDescriptions {
		dir := "sendrecv"
		for _, attr := range md.Attributes {
			switch {
			case attr.Key == sdp.AttrKeyCandidate:
				sum.candidates++
			case slices.Contains(directions, attr.Key):
				dir = attr.Key
			}
		}
		sum.media = append(sum.media, md.MediaName.Media+"/"+dir)
	}
	return sum, nil
}
