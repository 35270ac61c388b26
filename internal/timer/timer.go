// Package timer keeps session time, lap times and drift scores.
package timer

// maxPathPoints bounds the drift path kept per car.
const maxPathPoints = 4096

// CarTiming is the per-car timing and scoring state.
type CarTiming struct {
	Name string

	CurrentLap float64
	LastLap    float64
	BestLap    float64
	Laps       int

	Drift DriftState
}

// Timer counts ticks once a session is loaded and runs the pre-race
// countdown. Car ids are the order of AddCar calls.
type Timer struct {
	loaded  bool
	waiting bool
	pretime float64

	ticks   uint64
	elapsed float64

	cars []*CarTiming
}

// New returns an unloaded timer.
func New() *Timer { return &Timer{} }

// Load starts a session with a countdown of pretime seconds. A countdown
// of zero or less starts the race immediately.
func (t *Timer) Load(pretime float64) {
	t.loaded = true
	t.ticks = 0
	t.elapsed = 0
	t.pretime = max(pretime, 0)
	t.waiting = t.pretime > 0
	t.cars = nil
}

// Unload ends the session and forgets every car.
func (t *Timer) Unload() {
	t.loaded = false
	t.waiting = false
	t.pretime = 0
	t.cars = nil
}

// AddCar registers a car and returns its id.
func (t *Timer) AddCar(name string) int {
	t.cars = append(t.cars, &CarTiming{Name: name})
	return len(t.cars) - 1
}

// Car returns the timing for id.
func (t *Timer) Car(id int) (*CarTiming, bool) {
	if id < 0 || id >= len(t.cars) {
		return nil, false
	}
	return t.cars[id], true
}

// Cars returns the number of registered cars.
func (t *Timer) Cars() int { return len(t.cars) }

// Loaded reports whether a session is running.
func (t *Timer) Loaded() bool { return t.loaded }

// Waiting reports whether the pre-race countdown is still running.
func (t *Timer) Waiting() bool { return t.waiting }

// Countdown returns the seconds left before the start.
func (t *Timer) Countdown() float64 { return t.pretime }

// Ticks returns the number of ticks counted this session.
func (t *Timer) Ticks() uint64 { return t.ticks }

// Elapsed returns the seconds counted this session.
func (t *Timer) Elapsed() float64 { return t.elapsed }

// Tick advances the timer by dt. It does nothing until Load. During the
// countdown only the countdown moves; after it lap times accrue.
func (t *Timer) Tick(dt float64) {
	if !t.loaded {
		return
	}
	t.ticks++
	t.elapsed += dt

	if t.waiting {
		t.pretime -= dt
		if t.pretime <= 0 {
			t.pretime = 0
			t.waiting = false
		}
		return
	}
	for _, c := range t.cars {
		c.CurrentLap += dt
	}
}

// Lap closes the current lap of car id and returns its time.
func (t *Timer) Lap(id int) (float64, bool) {
	c, ok := t.Car(id)
	if !ok {
		return 0, false
	}
	lap := c.CurrentLap
	c.LastLap = lap
	if c.BestLap == 0 || lap < c.BestLap {
		c.BestLap = lap
	}
	c.Laps++
	c.CurrentLap = 0
	return lap, true
}
