package gauge

import (
	"time"

	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/x/mathx"
	"gaugecode-go/x/strx"
)

// ---------------- Params supplied via config ----------------

type Params struct {
	Name          string  `json:"name,omitempty"`
	Addr          int     `json:"addr,omitempty"`
	SampleEveryMS int     `json:"sample_every_ms,omitempty"`
	PollLimit     int     `json:"poll_limit,omitempty"`
	SampleCount   int     `json:"sample_count,omitempty"`
	NoiseLimit    float64 `json:"noise_limit,omitempty"`
}

const defaultSampleEvery = 5 * time.Second

func (p Params) name() string {
	return strx.Coalesce(p.Name, "main")
}

func (p Params) sampleEvery() time.Duration {
	ms := mathx.Clamp(p.SampleEveryMS, 0, 3_600_000)
	if ms == 0 {
		return defaultSampleEvery
	}
	return time.Duration(ms) * time.Millisecond
}

// DriverConfig returns the driver configuration described by p. Zero fields
// keep the driver defaults.
func (p Params) DriverConfig() bq34z100.Config {
	cfg := bq34z100.DefaultConfig()
	if p.Addr != 0 {
		cfg.Address = uint16(p.Addr)
	}
	if p.PollLimit > 0 {
		cfg.PollLimit = p.PollLimit
	}
	if p.SampleCount > 0 {
		cfg.SampleCount = p.SampleCount
	}
	if p.NoiseLimit > 0 {
		cfg.NoiseLimit = p.NoiseLimit
	}
	return cfg
}

// ---------------- Request payloads ----------------

type capacityReq struct {
	MAh *int `json:"mAh"`
}

type energyReq struct {
	Energy *int `json:"energy"`
}

type cellVoltageReq struct {
	T1T2 *int `json:"t1_t2_mV"`
	T2T3 *int `json:"t2_t3_mV"`
	T3T4 *int `json:"t3_t4_mV"`
}

type cellsReq struct {
	Cells *int `json:"cells"`
}

type packConfigReq struct {
	Value *int `json:"value"`
}

type terminationReq struct {
	TaperCurrent     int `json:"taper_current_mA"`
	MinTaperCapacity int `json:"min_taper_capacity"`
	CellTaperVoltage int `json:"cell_taper_mV"`
	TaperWindow      int `json:"taper_window_s"`
	TCASet           int `json:"tca_set"`
	TCAClear         int `json:"tca_clear"`
	FCSet            int `json:"fc_set"`
	FCClear          int `json:"fc_clear"`
}

type deadbandReq struct {
	MA *int `json:"mA"`
}

type voltageCalReq struct {
	AppliedMV *int `json:"applied_mV"`
	Cells     *int `json:"cells"`
}

type currentCalReq struct {
	AppliedMA *int `json:"applied_mA"`
}

type blockReq struct {
	Subclass *int `json:"subclass"`
	Offset   int  `json:"offset"`
}
