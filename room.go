package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dkarls/watchparty/pkg/signal"
)

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "clear", "deep",
	"eager", "fond", "gold", "keen", "late", "mild",
	"neat", "pale", "proud", "quick", "ripe", "soft",
	"still", "sunny", "tidy", "vivid", "warm", "wide",
}

var nouns = []string{
	"aspen", "brook", "cedar", "cliff", "cloud", "comet",
	"coral", "delta", "ember", "fjord", "glade", "grove",
	"heron", "lagoon", "maple", "meadow", "otter", "pines",
	"ridge", "shore", "sparrow", "summit", "tundra", "willow",
}

var rng *rand.Rand

func init() {
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateRoomCode creates a memorable room code in adjective-noun-nn form.
func GenerateRoomCode() string {
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := nouns[rng.Intn(len(nouns))]
	num := rng.Intn(100)
	return fmt.Sprintf("%s-%s-%02d", adj, noun, num)
}

// syncRoomID derives the playback-sync topic from the call room. The two
// protocols share the relay but never each other's messages.
func syncRoomID(roomID string) string {
	return signal.NormalizeRoomID(roomID) + "-sync"
}
