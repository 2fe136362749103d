package platform

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/tilesim/mem/coherence/cachectrl"
	"github.com/sarchlab/tilesim/mem/coherence/dirctrl"
	"github.com/sarchlab/tilesim/mem/coherence/directory"
)

// Summary aggregates the counters of a run.
type Summary struct {
	EndTime    float64
	Reads      uint64
	Writes     uint64
	Mismatches int

	Cache     cachectrl.Stats
	Protocol  dirctrl.Stats
	Directory directory.Stats
}

// Summary collects the counters of all the components.
func (p *Platform) Summary() Summary {
	s := Summary{
		EndTime:    float64(p.Engine.CurrentTime()),
		Reads:      p.Agent.ReadsDone(),
		Writes:     p.Agent.WritesDone(),
		Mismatches: len(p.Agent.Mismatches()),
	}

	for _, c := range p.Caches {
		addCacheStats(&s.Cache, c.Stats())
	}

	for _, d := range p.Directories {
		addProtocolStats(&s.Protocol, d.Engine().Stats())

		ds := d.Engine().Directory().Stats()
		s.Directory.Accesses += ds.Accesses
		s.Directory.Evictions += ds.Evictions
		s.Directory.BackInvalidations += ds.BackInvalidations
	}

	return s
}

func addCacheStats(sum *cachectrl.Stats, s cachectrl.Stats) {
	sum.ReadHits += s.ReadHits
	sum.ReadMisses += s.ReadMisses
	sum.WriteHits += s.WriteHits
	sum.WriteMisses += s.WriteMisses
	sum.Upgrades += s.Upgrades
	sum.Evictions += s.Evictions
	sum.DirtyEvictions += s.DirtyEvictions
	sum.Invalidations += s.Invalidations
	sum.Demotions += s.Demotions
	sum.DroppedBroadcasts += s.DroppedBroadcasts
}

func addProtocolStats(sum *dirctrl.Stats, s dirctrl.Stats) {
	sum.Reads += s.Reads
	sum.Writes += s.Writes
	sum.Nullifies += s.Nullifies
	sum.Updates += s.Updates
	sum.Broadcasts += s.Broadcasts
	sum.Acks += s.Acks
	sum.Writebacks += s.Writebacks
	sum.Replies += s.Replies
	sum.MemReads += s.MemReads
	sum.MemWrites += s.MemWrites
	sum.Stalls += s.Stalls
}

// Metric is one named counter of a summary.
type Metric struct {
	Name  string
	Value float64
}

// Metrics flattens the summary into named counters.
func (s Summary) Metrics() []Metric {
	return []Metric{
		{"end_time", s.EndTime},
		{"reads", float64(s.Reads)},
		{"writes", float64(s.Writes)},
		{"mismatches", float64(s.Mismatches)},
		{"cache_read_hits", float64(s.Cache.ReadHits)},
		{"cache_read_misses", float64(s.Cache.ReadMisses)},
		{"cache_write_hits", float64(s.Cache.WriteHits)},
		{"cache_write_misses", float64(s.Cache.WriteMisses)},
		{"cache_upgrades", float64(s.Cache.Upgrades)},
		{"cache_evictions", float64(s.Cache.Evictions)},
		{"cache_dirty_evictions", float64(s.Cache.DirtyEvictions)},
		{"cache_invalidations", float64(s.Cache.Invalidations)},
		{"cache_demotions", float64(s.Cache.Demotions)},
		{"cache_dropped_broadcasts", float64(s.Cache.DroppedBroadcasts)},
		{"dir_reads", float64(s.Protocol.Reads)},
		{"dir_writes", float64(s.Protocol.Writes)},
		{"dir_nullifies", float64(s.Protocol.Nullifies)},
		{"dir_updates", float64(s.Protocol.Updates)},
		{"dir_broadcasts", float64(s.Protocol.Broadcasts)},
		{"dir_acks", float64(s.Protocol.Acks)},
		{"dir_writebacks", float64(s.Protocol.Writebacks)},
		{"dir_replies", float64(s.Protocol.Replies)},
		{"dir_mem_reads", float64(s.Protocol.MemReads)},
		{"dir_mem_writes", float64(s.Protocol.MemWrites)},
		{"dir_stalls", float64(s.Protocol.Stalls)},
		{"dir_accesses", float64(s.Directory.Accesses)},
		{"dir_evictions", float64(s.Directory.Evictions)},
		{"dir_back_invalidations", float64(s.Directory.BackInvalidations)},
	}
}

// Print writes the summary as an aligned table.
func (s Summary) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for _, m := range s.Metrics() {
		if _, err := fmt.Fprintf(tw, "%s\t%g\n", m.Name, m.Value); err != nil {
			return err
		}
	}

	return tw.Flush()
}
