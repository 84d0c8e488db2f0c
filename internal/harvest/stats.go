package harvest

import "sync/atomic"

// Stats counts crawl progress. It is safe for concurrent readers while the
// engine writes; a nil *Stats discards updates.
type Stats struct {
	days          atomic.Int64
	windowsProbed atomic.Int64
	leaves        atomic.Int64
	splits        atomic.Int64
	fragments     atomic.Int64
	records       atomic.Int64
	blocked       atomic.Int64
	quotaWaits    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Days          int64 `json:"days"`
	WindowsProbed int64 `json:"windows_probed"`
	Leaves        int64 `json:"leaves"`
	Splits        int64 `json:"splits"`
	Fragments     int64 `json:"fragments"`
	Records       int64 `json:"records"`
	Blocked       int64 `json:"blocked"`
	QuotaWaits    int64 `json:"quota_waits"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Days:          s.days.Load(),
		WindowsProbed: s.windowsProbed.Load(),
		Leaves:        s.leaves.Load(),
		Splits:        s.splits.Load(),
		Fragments:     s.fragments.Load(),
		Records:       s.records.Load(),
		Blocked:       s.blocked.Load(),
		QuotaWaits:    s.quotaWaits.Load(),
	}
}

// RecordQuotaWait counts one blocking wait in the quota gate.
func (s *Stats) RecordQuotaWait() {
	if s != nil {
		s.quotaWaits.Add(1)
	}
}

func (s *Stats) addDay() {
	if s != nil {
		s.days.Add(1)
	}
}

func (s *Stats) addProbe() {
	if s != nil {
		s.windowsProbed.Add(1)
	}
}

func (s *Stats) addLeaves(n int) {
	if s != nil {
		s.leaves.Add(int64(n))
	}
}

func (s *Stats) addSplit() {
	if s != nil {
		s.splits.Add(1)
	}
}

func (s *Stats) addBlocked() {
	if s != nil {
		s.blocked.Add(1)
	}
}

func (s *Stats) addFragment(records int) {
	if s != nil {
		s.fragments.Add(1)
		s.records.Add(int64(records))
	}
}
