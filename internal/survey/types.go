package survey

// Transient is one catalog entry consumed by a run. Params is the opaque
// model-parameter set owned by the brightness model.
type Transient struct {
	RA       float64 // degrees
	Dec      float64 // degrees
	Redshift float64
	RefEpoch float64 // observer-frame reference epoch (MJD)
	MWEBV    float64 // Milky Way E(B-V) extinction estimate at the position
	Params   map[string]float64
}

// Model supplies the noiseless brightness of a transient.
type Model interface {
	// Bandflux returns the noiseless flux in the given band at the given
	// observer-frame times.
	Bandflux(tr Transient, times []float64, band string) ([]float64, error)

	// TimeBounds returns the rest-frame time support of the model as
	// (min, max) offsets relative to the reference epoch.
	TimeBounds() (minOffset, maxOffset float64)
}

// TransientSource is the transient catalog consumed by a run. RA and Dec
// expose the full coordinate arrays for the batched spatial queries.
type TransientSource interface {
	Count() int
	At(i int) Transient
	RA() []float64
	Dec() []float64
}
