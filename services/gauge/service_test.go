package gauge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"gaugecode-go/bus"
	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/errcode"
)

// fakeDev records calls and returns scripted results.
type fakeDev struct {
	mu    sync.Mutex
	calls []string

	verifyOK bool
	err      error
	hold     chan struct{}
	calRes   bq34z100.CalibrationResult
	block    bq34z100.FlashBlock

	capacity int16
	cells    uint8
	applied  int16
	term     bq34z100.ChargeTermination
}

func (f *fakeDev) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDev) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDev) update(name string) (bool, error) {
	f.record(name)
	return f.verifyOK, f.err
}

func (f *fakeDev) UpdateDesignCapacity(_ context.Context, mAh int16) (bool, error) {
	f.capacity = mAh
	return f.update("UpdateDesignCapacity")
}
func (f *fakeDev) UpdateQMax(context.Context, int16) (bool, error) { return f.update("UpdateQMax") }
func (f *fakeDev) UpdateDesignEnergy(context.Context, int16) (bool, error) {
	return f.update("UpdateDesignEnergy")
}
func (f *fakeDev) UpdateCellChargeVoltageRange(context.Context, uint16, uint16, uint16) (bool, error) {
	return f.update("UpdateCellChargeVoltageRange")
}
func (f *fakeDev) UpdateNumberOfSeriesCells(_ context.Context, n uint8) (bool, error) {
	f.cells = n
	return f.update("UpdateNumberOfSeriesCells")
}
func (f *fakeDev) UpdatePackConfiguration(context.Context, bq34z100.PackConfig) (bool, error) {
	return f.update("UpdatePackConfiguration")
}
func (f *fakeDev) UpdateChargeTerminationParameters(_ context.Context, ct bq34z100.ChargeTermination) (bool, error) {
	f.term = ct
	return f.update("UpdateChargeTerminationParameters")
}
func (f *fakeDev) SetCurrentDeadband(context.Context, uint8) error {
	f.record("SetCurrentDeadband")
	return f.err
}
func (f *fakeDev) CalibrateCCOffset(context.Context) error {
	f.record("CalibrateCCOffset")
	if f.hold != nil {
		<-f.hold
	}
	return f.err
}
func (f *fakeDev) CalibrateBoardOffset(context.Context) error {
	f.record("CalibrateBoardOffset")
	return f.err
}
func (f *fakeDev) CalibrateVoltageDivider(context.Context, uint16, uint8) (bq34z100.CalibrationResult, error) {
	f.record("CalibrateVoltageDivider")
	return f.calRes, f.err
}
func (f *fakeDev) CalibrateSenseResistor(_ context.Context, mA int16) (bq34z100.CalibrationResult, error) {
	f.applied = mA
	f.record("CalibrateSenseResistor")
	return f.calRes, f.err
}
func (f *fakeDev) Ready(context.Context) error  { f.record("Ready"); return f.err }
func (f *fakeDev) Seal(context.Context) error   { f.record("Seal"); return f.err }
func (f *fakeDev) Unseal(context.Context) error { f.record("Unseal"); return f.err }
func (f *fakeDev) Reset(context.Context) error  { f.record("Reset"); return f.err }
func (f *fakeDev) ReadFlashBlock(uint8, uint8) (bq34z100.FlashBlock, error) {
	f.record("ReadFlashBlock")
	return f.block, f.err
}
func (f *fakeDev) Snapshot() bq34z100.Snapshot {
	return bq34z100.Snapshot{Voltage_mV: 12010, SoC: 80, Seal: bq34z100.Sealed}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func startService(t *testing.T, dev *fakeDev) (*Service, *bus.Connection) {
	t.Helper()
	b := bus.NewBus(16)
	svc := New(b.NewConnection("gauge"), dev, Params{Name: "bat0", SampleEveryMS: 3_600_000}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)
	client := b.NewConnection("client")
	// Wait until the control subscription exists: the state topic is
	// published right after it.
	st := client.Subscribe(svc.StateTopic())
	defer client.Unsubscribe(st)
	select {
	case <-st.Channel():
	case <-time.After(time.Second):
		t.Fatal("service did not start")
	}
	return svc, client
}

func call(t *testing.T, svc *Service, c *bus.Connection, method string, payload any) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := c.RequestWait(ctx, c.NewMessage(svc.CtrlTopic(method), payload, false))
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	m, ok := reply.Payload.(map[string]any)
	if !ok {
		t.Fatalf("%s: reply %#v", method, reply.Payload)
	}
	return m
}

func TestUpdateDesignCapacityReply(t *testing.T) {
	dev := &fakeDev{verifyOK: true}
	svc, c := startService(t, dev)

	r := call(t, svc, c, "update_design_capacity", map[string]any{"mAh": 2000.0})
	if r["ok"] != true || r["verified"] != true {
		t.Fatalf("reply %v", r)
	}
	if dev.capacity != 2000 {
		t.Fatalf("capacity %d", dev.capacity)
	}
}

func TestVerifyFailedReply(t *testing.T) {
	dev := &fakeDev{verifyOK: false}
	svc, c := startService(t, dev)

	r := call(t, svc, c, "update_q_max", map[string]any{"mAh": 3200})
	if r["ok"] != false || r["code"] != string(errcode.VerifyFailed) {
		t.Fatalf("reply %v", r)
	}
}

func TestInvalidParams(t *testing.T) {
	dev := &fakeDev{verifyOK: true}
	svc, c := startService(t, dev)

	cases := []struct {
		method  string
		payload any
		code    errcode.Code
	}{
		{"update_design_capacity", map[string]any{}, errcode.InvalidParams},
		{"update_design_capacity", map[string]any{"mAh": 40000}, errcode.InvalidParams},
		{"update_series_cells", map[string]any{"cells": 0}, errcode.InvalidParams},
		{"calibrate_sense_resistor", map[string]any{"applied_mA": 0}, errcode.InvalidParams},
		{"update_q_max", `{"mAh": "lots"}`, errcode.InvalidPayload},
		{"no_such_method", nil, errcode.Unsupported},
	}
	for _, tc := range cases {
		r := call(t, svc, c, tc.method, tc.payload)
		if r["ok"] != false || r["code"] != string(tc.code) {
			t.Errorf("%s %v: reply %v, want %s", tc.method, tc.payload, r, tc.code)
		}
	}
	if calls := dev.Calls(); len(calls) != 0 {
		t.Fatalf("device touched: %v", calls)
	}
}

func TestDriverErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code errcode.Code
	}{
		{bq34z100.ErrSealed, errcode.Sealed},
		{&bq34z100.BusError{Op: "read", Reg: 0x08, Err: errors.New("nack")}, errcode.BusError},
		{bq34z100.ErrCalibrationTimeout, errcode.Timeout},
		{context.Canceled, errcode.Cancelled},
	}
	for _, tc := range cases {
		if got := codeOf(tc.err); got != tc.code {
			t.Errorf("codeOf(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}

func TestCalibrationReplies(t *testing.T) {
	dev := &fakeDev{calRes: bq34z100.CalibrationResult{Mean: -990, StdDev: 3}}
	svc, c := startService(t, dev)

	r := call(t, svc, c, "calibrate_sense_resistor", map[string]any{"applied_mA": -1000})
	if r["ok"] != true || r["mean"] != -990.0 || dev.applied != -1000 {
		t.Fatalf("reply %v applied %d", r, dev.applied)
	}

	dev.calRes = bq34z100.CalibrationResult{Mean: 12000, StdDev: 300, Aborted: true}
	r = call(t, svc, c, "calibrate_voltage_divider", map[string]any{"applied_mV": 12000, "cells": 4})
	if r["ok"] != false || r["code"] != string(errcode.NoiseGate) {
		t.Fatalf("noise gate reply %v", r)
	}
}

func TestChargeTermination(t *testing.T) {
	dev := &fakeDev{verifyOK: true}
	svc, c := startService(t, dev)

	r := call(t, svc, c, "update_charge_termination", map[string]any{
		"taper_current_mA": 100, "taper_window_s": 40, "tca_set": -1, "fc_clear": 98,
	})
	if r["ok"] != true {
		t.Fatalf("reply %v", r)
	}
	if dev.term.TaperCurrent != 100 || dev.term.TCASet != -1 || dev.term.FCClear != 98 {
		t.Fatalf("term %+v", dev.term)
	}
}

func TestReadBlockUnsealsFirst(t *testing.T) {
	dev := &fakeDev{}
	dev.block[0] = 0xab
	svc, c := startService(t, dev)

	r := call(t, svc, c, "read_block", map[string]any{"subclass": 104, "offset": 14})
	if r["ok"] != true {
		t.Fatalf("reply %v", r)
	}
	data, _ := r["data"].(string)
	if len(data) != 64 || data[:2] != "ab" {
		t.Fatalf("data %q", data)
	}
	calls := dev.Calls()
	if len(calls) != 2 || calls[0] != "Unseal" || calls[1] != "ReadFlashBlock" {
		t.Fatalf("calls %v", calls)
	}
}

func TestTelemetryRetained(t *testing.T) {
	dev := &fakeDev{}
	svc, c := startService(t, dev)

	sub := c.Subscribe(svc.TelemetryTopic())
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		p := m.Payload.(map[string]any)
		if p["voltage_mV"] != uint16(12010) || p["seal"] != "sealed" {
			t.Fatalf("telemetry %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained telemetry")
	}
}

func TestParamsDefaults(t *testing.T) {
	var p Params
	if p.name() != "main" || p.sampleEvery() != defaultSampleEvery {
		t.Fatalf("defaults: %q %v", p.name(), p.sampleEvery())
	}
	cfg := Params{Addr: 0x56, PollLimit: 10}.DriverConfig()
	if cfg.Address != 0x56 || cfg.PollLimit != 10 || cfg.SampleCount != 50 {
		t.Fatalf("driver config %+v", cfg)
	}
}

func waitState(t *testing.T, sub *bus.Subscription, want string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if p, _ := m.Payload.(map[string]any); p["state"] == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %q not published", want)
		}
	}
}

func TestBusyWhileOperationRuns(t *testing.T) {
	dev := &fakeDev{hold: make(chan struct{})}
	svc, c := startService(t, dev)

	st := c.Subscribe(svc.StateTopic())
	defer c.Unsubscribe(st)
	first := c.Request(c.NewMessage(svc.CtrlTopic("calibrate_cc_offset"), nil, false))
	defer c.Unsubscribe(first)
	waitState(t, st, StateBusy)

	r := call(t, svc, c, "ready", nil)
	if r["ok"] != false || r["code"] != string(errcode.Busy) {
		t.Fatalf("reply while busy %v", r)
	}

	close(dev.hold)
	select {
	case m := <-first.Channel():
		if p := m.Payload.(map[string]any); p["ok"] != true {
			t.Fatalf("calibration reply %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no calibration reply")
	}
	if calls := dev.Calls(); len(calls) != 1 || calls[0] != "CalibrateCCOffset" {
		t.Fatalf("calls %v", calls)
	}
}
