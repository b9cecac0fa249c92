package domain

// Combinations lazily walks the full Cartesian product of the given specs
// in odometer order: the last parameter advances fastest. The order is
// deterministic across runs, which is what resumability and reproducible
// tests depend on.
type Combinations struct {
	specs   []ParameterSpec
	indices []int
	done    bool
}

// NewCombinations builds an iterator over the product of the specs' value
// sets. An empty spec makes the product empty; that is not an error at this
// layer.
func NewCombinations(specs []ParameterSpec) *Combinations {
	c := &Combinations{specs: specs}
	c.Reset()
	return c
}

// Count returns the total number of combinations: the product of each
// spec's value count.
func (c *Combinations) Count() int {
	if len(c.specs) == 0 {
		return 0
	}
	n := 1
	for _, s := range c.specs {
		n *= len(s.Values)
	}
	return n
}

// Reset restarts the iterator at the first combination.
func (c *Combinations) Reset() {
	c.indices = make([]int, len(c.specs))
	c.done = len(c.specs) == 0
	for _, s := range c.specs {
		if len(s.Values) == 0 {
			c.done = true
		}
	}
}

// Next returns the next assignment, or false once the product is exhausted.
// Each returned assignment is an independent map.
func (c *Combinations) Next() (Assignment, bool) {
	if c.done {
		return nil, false
	}

	out := make(Assignment, len(c.specs))
	for i, s := range c.specs {
		out[s.Name] = s.Values[c.indices[i]]
	}

	// advance the odometer, last position fastest
	for i := len(c.indices) - 1; i >= 0; i-- {
		c.indices[i]++
		if c.indices[i] < len(c.specs[i].Values) {
			return out, true
		}
		c.indices[i] = 0
	}

	c.done = true
	return out, true
}
