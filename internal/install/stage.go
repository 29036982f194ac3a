package install

// Stage is a step of the install pipeline.
type Stage int

const (
	CheckingSpace Stage = iota
	Downloading
	Extracting
	LinkingSharedData
	Validating
	Complete
	Failed
	Cancelled
)

var stageNames = [...]string{
	CheckingSpace:     "checking-space",
	Downloading:       "downloading",
	Extracting:        "extracting",
	LinkingSharedData: "linking-shared-data",
	Validating:        "validating",
	Complete:          "complete",
	Failed:            "failed",
	Cancelled:         "cancelled",
}

var stageStatus = [...]string{
	CheckingSpace:     "Checking available storage",
	Downloading:       "Downloading",
	Extracting:        "Extracting",
	LinkingSharedData: "Linking shared data",
	Validating:        "Validating installation",
	Complete:          "Installed",
	Failed:            "Installation failed",
	Cancelled:         "Installation cancelled",
}

// band holds the progress range of each working stage, in percent.
var band = [...][2]float64{
	CheckingSpace:     {0, 10},
	Downloading:       {10, 90},
	Extracting:        {90, 95},
	LinkingSharedData: {95, 98},
	Validating:        {98, 100},
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Status returns a human-readable description of s.
func (s Stage) Status() string {
	if s < 0 || int(s) >= len(stageStatus) {
		return "Unknown"
	}
	return stageStatus[s]
}

// Terminal reports whether s ends the pipeline.
func (s Stage) Terminal() bool {
	return s >= Complete
}

// Band returns the progress range of a working stage. Terminal stages return
// an empty band at 100.
func (s Stage) Band() (lo, hi float64) {
	if s < 0 || int(s) >= len(band) {
		return 100, 100
	}
	return band[s][0], band[s][1]
}

// Scale maps fraction f of stage s onto its band, clamping f to [0, 1].
func (s Stage) Scale(f float64) float64 {
	lo, hi := s.Band()
	switch {
	case f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	return lo + (hi-lo)*f
}
