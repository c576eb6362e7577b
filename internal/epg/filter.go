// SPDX-License-Identifier: MIT

package epg

import (
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	lklog "github.com/anilwee/dialog/internal/log"
)

// FilterOptions tunes a Filter run.
type FilterOptions struct {
	// Window keeps only programmes starting before Now+Window. Zero disables it.
	Window time.Duration
	// Now anchors Window; zero means time.Now().
	Now time.Time
	// SetRootAttrs adds or overrides attributes on the output <tv> root.
	SetRootAttrs map[string]string
	// Logger receives per-record debug output; nil uses the epg component logger.
	Logger *zerolog.Logger
}

// FilterStats summarizes a Filter run.
type FilterStats struct {
	ChannelsSeen      int
	ChannelsKept      int
	ChannelsSkipped   int
	ProgrammesSeen    int
	ProgrammesKept    int
	ProgrammesSkipped int
	OutsideWindow     int
}

// Filter selects matching channels and the programmes that reference them.
// The channel pass runs first so programmes are selected by identifier even
// though m may test display names. Source order is preserved and the input
// document is not modified.
func Filter(tv *TV, m Matcher, opts FilterOptions) (*TV, FilterStats) {
	logger := opts.Logger
	if logger == nil {
		l := lklog.WithComponent("epg")
		logger = &l
	}

	var stats FilterStats
	out := &TV{XMLName: tv.XMLName, Attrs: slices.Clone(tv.Attrs)}
	for _, k := range slices.Sorted(maps.Keys(opts.SetRootAttrs)) {
		out.SetAttr(k, opts.SetRootAttrs[k])
	}

	kept := make(map[string]struct{})
	for _, c := range tv.Channels {
		stats.ChannelsSeen++
		id := c.ID()
		if id == "" || len(c.Names()) == 0 {
			stats.ChannelsSkipped++
			logger.Debug().Str(lklog.FieldChannelID, id).Msg("skipping channel without id or display-name")
			continue
		}
		if _, dup := kept[id]; dup {
			stats.ChannelsSkipped++
			logger.Debug().Str(lklog.FieldChannelID, id).Msg("skipping duplicate channel id")
			continue
		}
		if !m.Match(c) {
			continue
		}
		kept[id] = struct{}{}
		out.Channels = append(out.Channels, c)
		stats.ChannelsKept++
	}

	var limit time.Time
	if opts.Window > 0 {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		limit = now.Add(opts.Window)
	}

	for _, p := range tv.Programmes {
		stats.ProgrammesSeen++
		ref := p.ChannelRef()
		if ref == "" {
			stats.ProgrammesSkipped++
			logger.Debug().Str("start", p.Start()).Msg("skipping programme without channel")
			continue
		}
		if _, ok := kept[ref]; !ok {
			continue
		}
		if !limit.IsZero() {
			start, err := p.StartTime()
			if err != nil {
				stats.ProgrammesSkipped++
				logger.Debug().Err(err).Str(lklog.FieldChannelID, ref).Msg("skipping programme with unparseable start")
				continue
			}
			if start.After(limit) {
				stats.OutsideWindow++
				continue
			}
		}
		out.Programmes = append(out.Programmes, p)
		stats.ProgrammesKept++
	}

	return out, stats
}
