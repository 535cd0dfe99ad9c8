// Package classifier maps hostnames to productivity categories.
package classifier

import (
	"slices"
	"strings"

	"flowstate/internal/types"
)

// DefaultProductive is the built-in productive membership list
var DefaultProductive = []string{
	"github.com",
	"stackoverflow.com",
	"docs.google.com",
	"notion.so",
	"linear.app",
	"trello.com",
	"asana.com",
	"figma.com",
	"slack.com",
	"meet.google.com",
	"zoom.us",
	"miro.com",
	"jira.com",
	"atlassian.com",
	"google.com/docs",
}

// DefaultDistracting is the built-in distracting membership list
var DefaultDistracting = []string{
	"youtube.com",
	"facebook.com",
	"twitter.com",
	"instagram.com",
	"reddit.com",
	"tiktok.com",
	"netflix.com",
	"twitch.tv",
	"amazon.com",
	"ebay.com",
	"pinterest.com",
	"buzzfeed.com",
	"tumblr.com",
	"discord.com",
}

// Classifier assigns a category by case-sensitive substring containment.
// The productive list is checked before the distracting list; anything
// matching neither is neutral.
//
// Containment is loose: "notgithub.com.evil.tld" contains
// "github.com" and is productive.
type Classifier struct {
	productive  []string
	distracting []string
}

// New returns a classifier over the given lists. Empty entries are
// dropped since they would match every hostname.
func New(productive, distracting []string) *Classifier {
	return &Classifier{
		productive:  compact(productive),
		distracting: compact(distracting),
	}
}

// Default returns a classifier over the built-in lists
func Default() *Classifier {
	return New(DefaultProductive, DefaultDistracting)
}

func compact(list []string) []string {
	out := make([]string, 0, len(list))
	for _, entry := range list {
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Classify is total and deterministic
func (c *Classifier) Classify(hostname string) types.Category {
	if containsAny(hostname, c.productive) {
		return types.CategoryProductive
	}
	if containsAny(hostname, c.distracting) {
		return types.CategoryDistracting
	}
	return types.CategoryNeutral
}

func containsAny(hostname string, list []string) bool {
	return slices.ContainsFunc(list, func(entry string) bool {
		return strings.Contains(hostname, entry)
	})
}

// Productive returns a copy of the productive list
func (c *Classifier) Productive() []string {
	return slices.Clone(c.productive)
}

// Distracting returns a copy of the distracting list
func (c *Classifier) Distracting() []string {
	return slices.Clone(c.distracting)
}
