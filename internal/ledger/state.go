package ledger

// State is what a resumed run knows about finished work. A nil *State knows
// nothing, so every window is pending.
type State struct {
	resumeDay string
	windows   map[Key]progress
	pageSize  int
	maxPages  int
}

type progress struct {
	lastPage  int
	total     int
	countOnly bool
}

func newState(entries []Entry, cfg Config) *State {
	s := &State{
		windows:  make(map[Key]progress),
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
	}
	for _, e := range entries {
		p := s.windows[e.Key]
		if e.Page == 0 {
			p.countOnly = true
		}
		if e.Page > p.lastPage {
			p.lastPage = e.Page
		}
		if e.TotalCount > p.total {
			p.total = e.TotalCount
		}
		s.windows[e.Key] = p
	}
	return s
}

// ResumeDay is the push day of the suspect last row, or "" for an empty
// ledger. Days before it were finished by the previous run.
func (s *State) ResumeDay() string {
	if s == nil {
		return ""
	}
	return s.resumeDay
}

// Done reports whether the window was confirmed empty or paged through every
// page its count calls for.
func (s *State) Done(key Key) bool {
	if s == nil {
		return false
	}
	p, ok := s.windows[key]
	if !ok {
		return false
	}
	if p.countOnly {
		return true
	}
	return p.lastPage >= s.expectedPages(p.total)
}

// NextPage is the first page not yet logged for the window.
func (s *State) NextPage(key Key) int {
	if s == nil {
		return 1
	}
	return s.windows[key].lastPage + 1
}

// Windows returns how many distinct windows have entries.
func (s *State) Windows() int {
	if s == nil {
		return 0
	}
	return len(s.windows)
}

func (s *State) expectedPages(total int) int {
	if s.pageSize <= 0 {
		return s.maxPages
	}
	pages := (total + s.pageSize - 1) / s.pageSize
	if s.maxPages > 0 && pages > s.maxPages {
		pages = s.maxPages
	}
	return pages
}
