package types

import (
	"sort"
	"time"
)

// DateLayout is the key format of a DailyBucket inside the Ledger
const DateLayout = "2006-01-02"

// Category is the productivity classification of a domain
type Category string

const (
	CategoryProductive  Category = "productive"
	CategoryDistracting Category = "distracting"
	CategoryNeutral     Category = "neutral"
)

// Valid reports whether c is one of the three known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryProductive, CategoryDistracting, CategoryNeutral:
		return true
	default:
		return false
	}
}

// ParseCategory converts a wire value into a Category, defaulting to neutral
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if !c.Valid() {
		return CategoryNeutral, false
	}
	return c, true
}

// DomainUsage is the per-domain entry of a DailyBucket
type DomainUsage struct {
	TimeSpent int64    `json:"timeSpent"` // in minutes
	Category  Category `json:"category"`
}

// DailyBucket aggregates one calendar day of tracked time
type DailyBucket struct {
	Domains            map[string]*DomainUsage `json:"domains"`
	ProductiveMinutes  int64                   `json:"productiveMinutes"`
	DistractingMinutes int64                   `json:"distractingMinutes"`
	NeutralMinutes     int64                   `json:"neutralMinutes"`
	TasksCompleted     int64                   `json:"tasksCompleted"`
}

// NewDailyBucket returns a zero-initialized bucket
func NewDailyBucket() *DailyBucket {
	return &DailyBucket{Domains: make(map[string]*DomainUsage)}
}

// AddMinutes increments the domain entry and the matching category total.
// The domain's category is taken from the existing entry when there is one;
// category is only used to create a missing entry.
func (b *DailyBucket) AddMinutes(domain string, minutes int64, category Category) Category {
	if b.Domains == nil {
		b.Domains = make(map[string]*DomainUsage)
	}
	entry, ok := b.Domains[domain]
	if !ok {
		entry = &DomainUsage{Category: category}
		b.Domains[domain] = entry
	}
	entry.TimeSpent += minutes
	b.addCategoryMinutes(entry.Category, minutes)
	return entry.Category
}

func (b *DailyBucket) addCategoryMinutes(category Category, minutes int64) {
	switch category {
	case CategoryProductive:
		b.ProductiveMinutes += minutes
	case CategoryDistracting:
		b.DistractingMinutes += minutes
	default:
		b.NeutralMinutes += minutes
	}
}

// CategoryMinutes returns the running total for one category
func (b *DailyBucket) CategoryMinutes(category Category) int64 {
	switch category {
	case CategoryProductive:
		return b.ProductiveMinutes
	case CategoryDistracting:
		return b.DistractingMinutes
	default:
		return b.NeutralMinutes
	}
}

// SumByCategory recomputes the category totals from the per-domain entries
func (b *DailyBucket) SumByCategory() map[Category]int64 {
	sums := map[Category]int64{
		CategoryProductive:  0,
		CategoryDistracting: 0,
		CategoryNeutral:     0,
	}
	for _, entry := range b.Domains {
		if entry.Category.Valid() {
			sums[entry.Category] += entry.TimeSpent
		} else {
			sums[CategoryNeutral] += entry.TimeSpent
		}
	}
	return sums
}

// AddTasksCompleted applies delta and clamps the counter at zero
func (b *DailyBucket) AddTasksCompleted(delta int64) {
	b.TasksCompleted += delta
	if b.TasksCompleted < 0 {
		b.TasksCompleted = 0
	}
}

// Clone returns a deep copy of the bucket
func (b *DailyBucket) Clone() *DailyBucket {
	if b == nil {
		return nil
	}
	out := *b
	out.Domains = make(map[string]*DomainUsage, len(b.Domains))
	for name, entry := range b.Domains {
		copied := *entry
		out.Domains[name] = &copied
	}
	return &out
}

// TopDomains returns the domains sorted by time spent, descending
func (b *DailyBucket) TopDomains(limit int) []DomainStat {
	stats := make([]DomainStat, 0, len(b.Domains))
	for name, entry := range b.Domains {
		stats = append(stats, DomainStat{Domain: name, TimeSpent: entry.TimeSpent, Category: entry.Category})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TimeSpent == stats[j].TimeSpent {
			return stats[i].Domain < stats[j].Domain
		}
		return stats[i].TimeSpent > stats[j].TimeSpent
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// DomainStat is a flattened domain entry used by query results
type DomainStat struct {
	Domain    string   `json:"domain"`
	TimeSpent int64    `json:"timeSpent"`
	Category  Category `json:"category"`
}

// Ledger maps a date key to that day's bucket
type Ledger map[string]*DailyBucket

// Bucket returns the bucket for date, creating a zero-initialized one if absent
func (l Ledger) Bucket(date string) *DailyBucket {
	bucket, ok := l[date]
	if !ok || bucket == nil {
		bucket = NewDailyBucket()
		l[date] = bucket
	}
	if bucket.Domains == nil {
		bucket.Domains = make(map[string]*DomainUsage)
	}
	return bucket
}

// Dates returns the ledger's date keys, newest first
func (l Ledger) Dates() []string {
	dates := make([]string, 0, len(l))
	for date := range l {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// Clone returns a deep copy of the ledger
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for date, bucket := range l {
		out[date] = bucket.Clone()
	}
	return out
}

// DateKey formats t as a ledger key. The day boundary is the UTC day,
// matching the extension's toISOString date split.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDateKey parses a ledger key back into a UTC midnight
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, key, time.UTC)
}
