package app

import (
	"fmt"

	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

const (
	minNameLen       = 3
	maxNameLen       = 20
	nicknameAttempts = 5
)

var nicknameAdjectives = []string{
	"Brave", "Calm", "Clever", "Daring", "Eager", "Fierce", "Gentle",
	"Happy", "Jolly", "Keen", "Lively", "Mighty", "Nimble", "Plucky",
	"Quick", "Silent", "Sly", "Snappy", "Swift", "Witty",
}

var nicknameNouns = []string{
	"Badger", "Falcon", "Fox", "Heron", "Lynx", "Marmot", "Otter",
	"Panda", "Puffin", "Raven", "Seal", "Stoat", "Tiger", "Walrus",
	"Weasel", "Wolf", "Wombat", "Yak",
}

// pickNickname generates an adjective+noun name unique within the roster.
// After a bounded number of resamples it falls back to a numeric suffix,
// incremented until unique; the roster is finite so that always terminates.
func (c *Coordinator) pickNickname(s *domain.Session) string {
	var base string
	for attempt := 0; attempt < nicknameAttempts; attempt++ {
		base = c.randomNickname()
		if s.PlayerByName(base) == nil {
			return base
		}
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if len(candidate) > maxNameLen {
			candidate = fmt.Sprintf("%s%d", base[:maxNameLen-len(fmt.Sprint(n))], n)
		}
		if s.PlayerByName(candidate) == nil {
			return candidate
		}
	}
}

func (c *Coordinator) randomNickname() string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	adj := nicknameAdjectives[c.rnd.Intn(len(nicknameAdjectives))]
	noun := nicknameNouns[c.rnd.Intn(len(nicknameNouns))]
	return adj + noun
}
