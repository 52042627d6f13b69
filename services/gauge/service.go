// Package gauge runs a bq34z100 behind the bus. Telemetry is published
// retained and every operation is a request on gauge/<name>/ctrl/<method>
// answered on the request's ReplyTo. At most one operation touches the
// device at a time; others get a busy reply.
package gauge

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gaugecode-go/bus"
	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/errcode"
	"gaugecode-go/x/timex"
)

// Service states published on gauge/<name>/state.
const (
	StateIdle    = "idle"
	StateBusy    = "busy"
	StateError   = "error"
	StateStopped = "stopped"
)

// gaugeDev is the driver surface the service depends on.
type gaugeDev interface {
	UpdateDesignCapacity(ctx context.Context, mAh int16) (bool, error)
	UpdateQMax(ctx context.Context, mAh int16) (bool, error)
	UpdateDesignEnergy(ctx context.Context, energy int16) (bool, error)
	UpdateCellChargeVoltageRange(ctx context.Context, t1t2, t2t3, t3t4 uint16) (bool, error)
	UpdateNumberOfSeriesCells(ctx context.Context, cells uint8) (bool, error)
	UpdatePackConfiguration(ctx context.Context, cfg bq34z100.PackConfig) (bool, error)
	UpdateChargeTerminationParameters(ctx context.Context, ct bq34z100.ChargeTermination) (bool, error)
	SetCurrentDeadband(ctx context.Context, mA uint8) error

	CalibrateCCOffset(ctx context.Context) error
	CalibrateBoardOffset(ctx context.Context) error
	CalibrateVoltageDivider(ctx context.Context, appliedMilliV uint16, cells uint8) (bq34z100.CalibrationResult, error)
	CalibrateSenseResistor(ctx context.Context, appliedMilliA int16) (bq34z100.CalibrationResult, error)

	Ready(ctx context.Context) error
	Seal(ctx context.Context) error
	Unseal(ctx context.Context) error
	Reset(ctx context.Context) error

	ReadFlashBlock(subClass, offset uint8) (bq34z100.FlashBlock, error)
	Snapshot() bq34z100.Snapshot
}

type Service struct {
	name        string
	dev         gaugeDev
	conn        *bus.Connection
	log         logrus.FieldLogger
	sampleEvery time.Duration
	base        bus.Topic
}

// New builds a service for dev. A nil log uses the logrus standard logger.
func New(conn *bus.Connection, dev gaugeDev, p Params, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	name := p.name()
	return &Service{
		name:        name,
		dev:         dev,
		conn:        conn,
		log:         log.WithField("gauge", name),
		sampleEvery: p.sampleEvery(),
		base:        bus.T("gauge", name),
	}
}

// Topics.
func (s *Service) TelemetryTopic() bus.Topic { return s.base.Append("telemetry") }
func (s *Service) StateTopic() bus.Topic     { return s.base.Append("state") }
func (s *Service) CtrlTopic(method string) bus.Topic {
	return s.base.Append("ctrl", method)
}

// result carries a finished operation back to the loop.
type result struct {
	msg    *bus.Message
	method string
	out    map[string]any
	err    error
	took   time.Duration
}

// Run serves requests and samples telemetry until ctx ends or the control
// subscription is closed. One operation runs at a time; requests arriving
// meanwhile are answered with busy and telemetry sampling pauses.
func (s *Service) Run(ctx context.Context) error {
	sub := s.conn.Subscribe(s.CtrlTopic(bus.SingleLevel))
	defer s.conn.Unsubscribe(sub)

	tick := time.NewTicker(s.sampleEvery)
	defer tick.Stop()

	s.publishState(StateIdle, "")
	s.publishTelemetry()
	s.log.WithField("every", s.sampleEvery).Info("gauge service started")

	done := make(chan result, 1)
	busy := false
	for {
		select {
		case <-ctx.Done():
			if busy {
				s.finish(<-done)
			}
			s.publishState(StateStopped, "")
			s.log.Info("gauge service stopping")
			return ctx.Err()
		case <-tick.C:
			if !busy {
				s.publishTelemetry()
			}
		case msg, ok := <-sub.Channel():
			if !ok {
				if busy {
					s.finish(<-done)
				}
				return nil
			}
			if busy {
				s.conn.Reply(msg, errReply(errcode.Busy), false)
				continue
			}
			busy = s.begin(ctx, msg, done)
		case r := <-done:
			busy = false
			s.finish(r)
		}
	}
}

func (s *Service) publishState(state, code string) {
	p := map[string]any{"state": state, "ts_ms": timex.NowMs()}
	if code != "" {
		p["code"] = code
	}
	s.conn.Publish(s.conn.NewMessage(s.StateTopic(), p, true))
}

func (s *Service) publishTelemetry() {
	s.conn.Publish(s.conn.NewMessage(s.TelemetryTopic(), telemetryPayload(s.dev.Snapshot()), true))
}

// begin starts the operation named by msg's last topic token. It reports
// whether an operation is now running.
func (s *Service) begin(ctx context.Context, msg *bus.Message, done chan<- result) bool {
	method, ok := msg.Topic[len(msg.Topic)-1].(string)
	if !ok {
		s.conn.Reply(msg, errReply(errcode.InvalidTopic), false)
		return false
	}
	s.publishState(StateBusy, "")
	go func() {
		start := time.Now()
		out, err := s.dispatch(ctx, method, msg.Payload)
		done <- result{msg: msg, method: method, out: out, err: err, took: time.Since(start)}
	}()
	return true
}

func (s *Service) finish(r result) {
	log := s.log.WithField("op", r.method)
	if r.err != nil {
		code := codeOf(r.err)
		log.WithFields(logrus.Fields{"code": code, "error": r.err}).Warn("gauge operation failed")
		s.publishState(StateError, string(code))
		s.conn.Reply(r.msg, errReply(code), false)
		return
	}
	log.WithField("took", r.took).Info("gauge operation done")
	s.publishState(StateIdle, "")

	reply := map[string]any{"ok": true, "code": string(errcode.OK)}
	for k, v := range r.out {
		reply[k] = v
	}
	s.conn.Reply(r.msg, reply, false)
}

func errReply(c errcode.Code) map[string]any {
	return map[string]any{"ok": false, "code": string(c)}
}

// codeOf maps driver sentinels first, then falls back to the generic mapping.
func codeOf(err error) errcode.Code {
	if err == nil {
		return errcode.OK
	}
	var be *bq34z100.BusError
	switch {
	case errors.As(err, &be):
		return errcode.BusError
	case errors.Is(err, bq34z100.ErrSealed):
		return errcode.Sealed
	case errors.Is(err, bq34z100.ErrInvalidParam), errors.Is(err, bq34z100.ErrInvalidLength):
		return errcode.InvalidParams
	}
	return errcode.MapDriverErr(err)
}

func telemetryPayload(s bq34z100.Snapshot) map[string]any {
	return map[string]any{
		"voltage_mV":         s.Voltage_mV,
		"current_mA":         s.Current_mA,
		"avg_current_mA":     s.AvgCurrent_mA,
		"temp_mC":            s.Temp_mC,
		"soc_pct":            s.SoC,
		"soh_pct":            s.SoH & 0xff,
		"soh_status":         s.SoH >> 8,
		"remaining_mAh":      s.Remaining_mAh,
		"full_charge_mAh":    s.FullCharge_mAh,
		"cycle_count":        s.CycleCount,
		"avg_time_to_empty":  s.AvgTimeToEmpty,
		"avg_time_to_full":   s.AvgTimeToFull,
		"flags":              uint32(s.Flags),
		"control_status":     uint16(s.Status),
		"calibration_active": s.Status.Has(bq34z100.StatusCALEN),
		"seal":               s.Seal.String(),
		"ts_ms":              timex.NowMs(),
	}
}
