// Package announce renders an Entity's join-announcement message: a fixed
// set of literal placeholders substituted line-by-line, with whole-line
// removal when a referenced value is absent (spec.md §6 "Announcement
// template grammar"). This is not general templating — the grammar is a
// small, fixed vocabulary posted verbatim to the announcement channel, so it is
// implemented as a direct string transform rather than routed through the
// teacher's rytsh/mugo Go-template engine (see DESIGN.md).
package announce

import (
	"strings"
)

// Default is used when a server has not set its own announce_message.
const Default = "**{name}** ({platform}) has joined this server. You can mention them with {mention}.\nPartnered with **{owner}**"

// Data supplies the values behind each placeholder. Any empty field, Name
// included, triggers whole-line removal for lines that reference it.
type Data struct {
	Name         string
	Mention      string // platform role mention, e.g. "<@&123>"
	Platform     string // capitalized platform tag
	Owner        string
	OwnerMention string
}

var placeholders = []string{"{name}", "{mention}", "{platform}", "{owner}", "{owner_mention}"}

// Render expands template against data, dropping any line that references a
// placeholder whose value is empty. template defaults to Default when empty.
func Render(template string, data Data) string {
	if template == "" {
		template = Default
	}

	values := map[string]string{
		"{name}":          data.Name,
		"{mention}":       data.Mention,
		"{platform}":      data.Platform,
		"{owner}":         data.Owner,
		"{owner_mention}": data.OwnerMention,
	}

	lines := strings.Split(template, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if lineReferencesAbsentValue(line, values) {
			continue
		}
		kept = append(kept, substitute(line, values))
	}

	return strings.Join(kept, "\n")
}

func lineReferencesAbsentValue(line string, values map[string]string) bool {
	for _, ph := range placeholders {
		if strings.Contains(line, ph) && values[ph] == "" {
			return true
		}
	}
	return false
}

func substitute(line string, values map[string]string) string {
	for _, ph := range placeholders {
		line = strings.ReplaceAll(line, ph, values[ph])
	}
	return line
}
