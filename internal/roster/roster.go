// Package roster holds the records scraped from the call logs and the users
// kept in the CSV stores, along with the filtering and diffing applied
// between the two.
package roster

// Record is one row of a call log.
type Record struct {
	RadioID int64
	Group   string
	Network string
}

// User is one row of the roster, audit and talk-group stores. Only RadioID
// is guaranteed to be set, the rest are empty when enrichment missed.
type User struct {
	RadioID   int64
	Callsign  string
	FirstName string
	State     string
}

// IDSet is a set of radio ids.
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id int64) {
	s[id] = struct{}{}
}

// Criteria selects the records worth tracking. Both fields are compared
// exactly as scraped.
type Criteria struct {
	Network   string
	TalkGroup string
}

// Matches are the two independent subsets of a batch: a record can be in
// either, both or neither.
type Matches struct {
	Network   []Record
	TalkGroup []Record
}

// Select applies both predicates of c to records. Each subset keeps the first
// occurrence of a radio id.
func Select(records []Record, c Criteria) Matches {
	var m Matches
	seenNetwork := IDSet{}
	seenTalkGroup := IDSet{}

	for _, r := range records {
		if r.Network == c.Network && !seenNetwork.Has(r.RadioID) {
			seenNetwork.Add(r.RadioID)
			m.Network = append(m.Network, r)
		}
		if r.Group == c.TalkGroup && !seenTalkGroup.Has(r.RadioID) {
			seenTalkGroup.Add(r.RadioID)
			m.TalkGroup = append(m.TalkGroup, r)
		}
	}

	return m
}

// Partition splits records into those whose id is already known and those
// that are not.
func Partition(records []Record, known IDSet) (existing, fresh []Record) {
	for _, r := range records {
		if known.Has(r.RadioID) {
			existing = append(existing, r)
			continue
		}
		fresh = append(fresh, r)
	}
	return existing, fresh
}

// IDs returns the radio ids of records in order.
func IDs(records []Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.RadioID
	}
	return ids
}
