package store

import "strings"

const (
	nameDigits   = 8
	nameAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NameCounter yields short base-36 identifiers in strictly increasing order,
// starting at "1". It only orders candidates; uniqueness comes from Reserve.
type NameCounter struct {
	count [nameDigits]byte
	done  bool
}

func NewNameCounter() *NameCounter {
	c := &NameCounter{}
	for i := range c.count {
		c.count[i] = '0'
	}
	return c
}

// Next increments the counter and returns its value with leading zeros
// stripped. ok is false once all 36^8 values have been produced.
func (c *NameCounter) Next() (name string, ok bool) {
	if c.done {
		return "", false
	}
	for digit := nameDigits - 1; digit >= 0; digit-- {
		switch c.count[digit] {
		case 'z':
			c.count[digit] = '0'
			continue
		case '9':
			c.count[digit] = 'a'
		default:
			c.count[digit]++
		}
		return strings.TrimLeft(string(c.count[:]), "0"), true
	}
	c.done = true
	return "", false
}
