package journal

import "regexp"

// FilterConfig is the append-time filtering policy: an entry matching
// any exclusion is skipped and never reaches the store.
type FilterConfig struct {
	ExcludedMethods             []string
	ExcludedPathPatterns        []*regexp.Regexp
	ExcludedContentTypePatterns []*regexp.Regexp
	MinBodySize                 int64
	MaxBodySize                 int64 // 0 = unbounded
	Predicate                   func(*Entry) bool
}

func (f *FilterConfig) excluded(e *Entry, contentType string) bool {
	if f == nil {
		return false
	}
	for _, m := range f.ExcludedMethods {
		if m == e.Method {
			return true
		}
	}
	for _, p := range f.ExcludedPathPatterns {
		if p.MatchString(e.Path) {
			return true
		}
	}
	for _, p := range f.ExcludedContentTypePatterns {
		if p.MatchString(contentType) {
			return true
		}
	}
	if f.MinBodySize > 0 && int64(len(e.Body)) < f.MinBodySize {
		return true
	}
	if f.MaxBodySize > 0 && int64(len(e.Body)) > f.MaxBodySize {
		return true
	}
	if f.Predicate != nil && !f.Predicate(e) {
		return true
	}
	return false
}
