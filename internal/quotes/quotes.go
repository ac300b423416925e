// Package quotes holds the motivational quotes shown next to the stats.
package quotes

import "math/rand/v2"

// Fallback is returned when the catalogue is empty.
const Fallback = "No quotes available at the moment. But you're doing great!"

var catalogue = []string{
	"The first step toward success is taken when you refuse to be a captive of the environment in which you first find yourself. - Mark Caine",
	"Our greatest glory is not in never failing, but in rising up every time we fail. - Ralph Waldo Emerson",
	"It is impossible to live without failing at something, unless you live so cautiously that you might as well not have lived at all - in which case, you fail by default. - J.K. Rowling",
	"Success is not final, failure is not fatal: It is the courage to continue that counts. - Winston Churchill",
	"I have not failed. I've just found 10,000 ways that won't work. - Thomas A. Edison",
	"You build on failure. You use it as a stepping stone. Close the door on the past. You don't try to forget the mistakes, but you don't dwell on it. You don't let it have any of your energy, or any of your time, or any of your space. - Johnny Cash",
	"It's fine to celebrate success but it is more important to heed the lessons of failure. - Bill Gates",
	"Rejection is merely a redirection; a course correction to your destiny. - Bryant McGill",
	"Every rejection is a gift. A chance to learn, a chance to grow, a chance to try again. Keep going!",
	"This is proof you're trying. Keep at it!",
}

// Catalogue serves quotes from a fixed list.
type Catalogue struct {
	quotes []string
}

// New returns a catalogue over quotes; nil means the built-in list.
func New(quotes []string) *Catalogue {
	if quotes == nil {
		quotes = catalogue
	}
	return &Catalogue{quotes: quotes}
}

// Random picks a quote uniformly, or Fallback when there are none.
func (c *Catalogue) Random() string {
	if len(c.quotes) == 0 {
		return Fallback
	}
	return c.quotes[rand.IntN(len(c.quotes))]
}

// All returns a copy of the catalogue.
func (c *Catalogue) All() []string {
	return append([]string(nil), c.quotes...)
}
