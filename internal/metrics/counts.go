package metrics

import "encoding/json"

// Bucket is one labelled count
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Counts maps labels to counts, remembering the order in which labels were
// first seen. It encodes to JSON as an ordered array of buckets.
type Counts struct {
	order  []string
	counts map[string]int
}

// NewCounts returns an empty Counts
func NewCounts() *Counts {
	return &Counts{counts: make(map[string]int)}
}

// Add increments the count of label
func (c *Counts) Add(label string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}
	c.counts[label]++
}

// Get returns the count of label
func (c *Counts) Get(label string) int {
	return c.counts[label]
}

// Len returns the number of distinct labels
func (c *Counts) Len() int {
	return len(c.order)
}

// Buckets returns the label/count pairs in first-seen order
func (c *Counts) Buckets() []Bucket {
	out := make([]Bucket, 0, len(c.order))
	for _, label := range c.order {
		out = append(out, Bucket{Label: label, Count: c.counts[label]})
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (c *Counts) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Buckets())
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Counts) UnmarshalJSON(data []byte) error {
	var buckets []Bucket
	if err := json.Unmarshal(data, &buckets); err != nil {
		return err
	}
	c.order = nil
	c.counts = make(map[string]int, len(buckets))
	for _, b := range buckets {
		if _, ok := c.counts[b.Label]; !ok {
			c.order = append(c.order, b.Label)
		}
		c.counts[b.Label] += b.Count
	}
	return nil
}
