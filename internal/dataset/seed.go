package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"datanerd/internal/clock"
	"datanerd/internal/logging"
)

// SeedConfig controls deterministic dataset generation. The same config
// always produces byte-identical tables.
type SeedConfig struct {
	Seed     int64
	StartDay string
	Days     int
}

type catalogEntry struct {
	id           string
	name         string
	category     string
	baseSessions float64 // mean daily sessions
	baseConv     float64 // mean conversion rate
	price        float64 // mean unit price
}

// Fixed catalog: 24 products across 6 categories. Base demand varies so
// top-N orderings are stable and non-trivial.
var catalog = []catalogEntry{
	{"P001", "Aurora Wireless Earbuds", "electronics", 420, 0.060, 79.99},
	{"P002", "Volt USB-C Charger 65W", "electronics", 360, 0.085, 34.50},
	{"P003", "Pixelframe Digital Photo Frame", "electronics", 150, 0.040, 119.00},
	{"P004", "Nimbus Bluetooth Speaker", "electronics", 310, 0.055, 59.90},
	{"P005", "Hearthstone Cast Iron Skillet", "home", 260, 0.075, 42.00},
	{"P006", "Breeze Tower Fan", "home", 190, 0.050, 89.99},
	{"P007", "Luma Smart Bulb 4-Pack", "home", 330, 0.070, 27.99},
	{"P008", "Cloudnine Memory Foam Pillow", "home", 280, 0.065, 38.50},
	{"P009", "Orbit Building Blocks 500pc", "toys", 240, 0.080, 49.99},
	{"P010", "Zephyr Stunt Kite", "toys", 110, 0.045, 24.95},
	{"P011", "Tinker Robotics Starter Kit", "toys", 170, 0.035, 139.00},
	{"P012", "Puzzlewood 1000pc Jigsaw", "toys", 200, 0.090, 19.99},
	{"P013", "Trailblazer Rain Jacket", "apparel", 300, 0.055, 94.00},
	{"P014", "Merino Trail Socks 3-Pack", "apparel", 350, 0.095, 21.50},
	{"P015", "Summit Fleece Hoodie", "apparel", 270, 0.060, 64.00},
	{"P016", "Coastline Linen Shirt", "apparel", 180, 0.050, 49.50},
	{"P017", "Glow Vitamin C Serum", "beauty", 390, 0.080, 32.00},
	{"P018", "Velvet Matte Lipstick Set", "beauty", 290, 0.075, 26.99},
	{"P019", "Pure Botanical Shampoo", "beauty", 250, 0.070, 18.99},
	{"P020", "Radiance LED Face Mask", "beauty", 130, 0.030, 149.00},
	{"P021", "Apex Adjustable Dumbbells", "sports", 210, 0.045, 189.00},
	{"P022", "Stride Running Belt", "sports", 230, 0.085, 17.99},
	{"P023", "Flexmat Pro Yoga Mat", "sports", 320, 0.070, 44.00},
	{"P024", "Hydra Insulated Bottle 1L", "sports", 380, 0.090, 29.95},
}

// Seed wipes and regenerates all three tables from cfg.
func (d *DB) Seed(cfg SeedConfig) error {
	start, err := time.ParseInLocation(clock.DateLayout, cfg.StartDay, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid start day %q: %w", cfg.StartDay, err)
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("days must be positive: %d", cfg.Days)
	}

	timer := logging.StartTimer(logging.CategoryDataset, "seed")
	defer timer.Stop()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"products", "orders", "traffic"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	insProduct, err := tx.Prepare("INSERT INTO products (id, name, category) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare product insert: %w", err)
	}
	defer insProduct.Close()
	insOrder, err := tx.Prepare("INSERT INTO orders (day, product_id, units, sales) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer insOrder.Close()
	insTraffic, err := tx.Prepare("INSERT INTO traffic (day, product_id, sessions) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare traffic insert: %w", err)
	}
	defer insTraffic.Close()

	for _, e := range catalog {
		if _, err := insProduct.Exec(e.id, e.name, e.category); err != nil {
			return fmt.Errorf("failed to insert product %s: %w", e.id, err)
		}
	}

	// One generator, fixed iteration order: the whole dataset is a pure
	// function of the seed.
	r := rand.New(rand.NewSource(cfg.Seed))

	for _, e := range catalog {
		for i := 0; i < cfg.Days; i++ {
			day := start.AddDate(0, 0, i)
			dayStr := day.Format(clock.DateLayout)

			weekend := 1.0
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				weekend = 1.25
			}
			seasonal := 1 + 0.15*math.Sin(2*math.Pi*float64(i)/60.0)

			sessions := int(math.Round(e.baseSessions * weekend * seasonal * (0.85 + 0.3*r.Float64())))
			if sessions < 1 {
				sessions = 1
			}

			conv := e.baseConv * (0.8 + 0.4*r.Float64())
			units := int(math.Round(float64(sessions) * conv))

			price := e.price * (0.95 + 0.1*r.Float64())
			sales := math.Round(float64(units)*price*100) / 100

			if _, err := insTraffic.Exec(dayStr, e.id, sessions); err != nil {
				return fmt.Errorf("failed to insert traffic row: %w", err)
			}
			if _, err := insOrder.Exec(dayStr, e.id, units, sales); err != nil {
				return fmt.Errorf("failed to insert order row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logging.Dataset("seeded %d products x %d days from %s (seed %d)",
		len(catalog), cfg.Days, cfg.StartDay, cfg.Seed)
	return nil
}

// IsSeeded reports whether the catalog has rows.
func (d *DB) IsSeeded() (bool, error) {
	var n int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count products: %w", err)
	}
	return n > 0, nil
}
