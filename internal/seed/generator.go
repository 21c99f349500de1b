// Package seed produces synthetic entities for development and tests.
package seed

import (
	"encoding/binary"
	"entitystore/pkg/domain"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Genders assigned to generated entities.
var Genders = []string{"Male", "Female", "Other"}

var (
	firstNames = []string{"John", "Jane", "Alice", "Bob", "Carlos", "Dana", "Emeka", "Fatima", "Grace", "Hiro", "Ines", "Jonas", "Kira", "Liam", "Maya", "Noor"}
	surnames   = []string{"Doe", "Smith", "Okafor", "Tanaka", "Garcia", "Muller", "Rossi", "Nguyen", "Kowalski", "Haddad", "Silva", "Walker"}
	streets    = []string{"Main Street", "Oak Avenue", "Station Road", "Harbour Lane", "Church Street", "Mill Road", "King Street", "Park Drive"}
	cities     = []string{"Springfield", "Riverton", "Lakeside", "Fairview", "Ashford", "Brookhaven", "Kingsport", "Westfield"}
	countries  = []string{"United States", "Canada", "United Kingdom", "France", "Germany", "Japan", "Nigeria", "Brazil", "India", "Australia"}
)

const birthWindow = 80 * 365 * 24 * time.Hour

// Generator is safe for concurrent use. Two generators built with the same
// seed and clock produce the same entities in the same order.
type Generator struct {
	mu  sync.Mutex
	src *rand.ChaCha8
	rng *rand.Rand
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithNow fixes the clock birth dates are measured back from.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New returns a generator drawing from seed.
func New(seed uint64, opts ...Option) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	src := rand.NewChaCha8(key)
	g := &Generator{src: src, rng: rand.New(src), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns count new entities. A non-positive count yields none.
func (g *Generator) Generate(count int) []domain.Entity {
	if count <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().UTC()
	out := make([]domain.Entity, 0, count)
	for range count {
		out = append(out, g.entity(now))
	}
	return out
}

func (g *Generator) entity(now time.Time) domain.Entity {
	id := uuid.Must(uuid.NewRandomFromReader(g.src))
	born := now.Add(-time.Duration(g.rng.Int64N(int64(birthWindow)))).Truncate(time.Second)
	return domain.Entity{
		ID: id.String(),
		Names: []domain.Name{{
			FirstName:  pick(g.rng, firstNames),
			MiddleName: pick(g.rng, firstNames),
			Surname:    pick(g.rng, surnames),
		}},
		Addresses: []domain.Address{{
			AddressLine: g.streetAddress(),
			City:        pick(g.rng, cities),
			Country:     pick(g.rng, countries),
		}},
		Dates:    []domain.Date{{DateType: domain.DateTypeBirth, DateValue: &born}},
		Gender:   pick(g.rng, Genders),
		Deceased: g.rng.IntN(2) == 1,
	}
}

func (g *Generator) streetAddress() string {
	return strconv.Itoa(1+g.rng.IntN(999)) + " " + pick(g.rng, streets)
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}

