// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rangefinder runs an RPLIDAR as a 2D rangefinder.
//
// A Driver owns the sensor lifecycle: it opens the transport, checks the
// sensor health with one reset-and-retry, starts scanning and then runs a
// periodic poll cycle that drains the transport into a ring buffer and decodes
// it into the scan. One mutex serialises the poll cycle against every public
// accessor.
package rangefinder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// GenericDeviceInfo describes the sensor when GET_INFO fails
const GenericDeviceInfo = "RPLIDAR 2D laser scanner (device info unavailable)"

// State is the driver lifecycle state
type State int

const (
	StateClosed State = iota
	StateOpening
	StateHealthCheck
	StateScanning
	StateClosing
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateHealthCheck:
		return "health check"
	case StateScanning:
		return "scanning"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceStatus is the status reported to scan consumers
type DeviceStatus int

const (
	StatusStandby DeviceStatus = iota
	StatusInUse
	StatusError
)

// String returns the status name
func (s DeviceStatus) String() string {
	switch s {
	case StatusStandby:
		return "standby"
	case StatusInUse:
		return "in use"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Opener establishes the transport to the sensor
type Opener func() (rplidar.Transport, error)

// Option configures a Driver
type Option func(*Driver)

// WithSampleHandler registers a callback for every accepted sample. It runs on
// the poll goroutine with the driver lock held and must not call back into
// the Driver.
func WithSampleHandler(f func(rplidar.Sample)) Option {
	return func(d *Driver) { d.onSample = f }
}

// WithSettleDelay overrides the command settle delay
func WithSettleDelay(delay time.Duration) Option {
	return func(d *Driver) { d.settleDelay = delay }
}

// Driver is an RPLIDAR rangefinder
type Driver struct {
	mu sync.Mutex

	cfg    Config
	opener Opener

	state      State
	status     DeviceStatus
	info       string
	deviceInfo *rplidar.DeviceInfo
	health     rplidar.Health

	transport rplidar.Transport
	cmd       *rplidar.CommandChannel
	rb        *rplidar.RingBuffer
	scan      *rplidar.ScanBuffer
	decoder   *rplidar.Decoder
	readBuf   []byte

	stop chan struct{}
	done chan struct{}

	settleDelay time.Duration
	onSample    func(rplidar.Sample)
	cycles      uint64
}

// NewDriver creates a closed driver
func NewDriver(cfg Config, opener Opener, opts ...Option) *Driver {
	d := &Driver{
		cfg:         cfg,
		opener:      opener,
		info:        GenericDeviceInfo,
		settleDelay: rplidar.SettleDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open connects to the sensor, checks its health, starts scanning and
// launches the poll cycle.
func (d *Driver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed {
		return fmt.Errorf("%w (state %s)", ErrAlreadyOpen, d.state)
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if d.opener == nil {
		return fmt.Errorf("%w: no transport opener", ErrConfig)
	}

	scan, err := rplidar.NewScanBuffer(d.cfg.MinAngle, d.cfg.MaxAngle, d.cfg.Resolution)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	rb := rplidar.NewRingBuffer(d.cfg.BufferCapacity)

	monitoring.Infof("max_dist %f, min_dist %f", d.cfg.MaxDistance, d.cfg.MinDistance)
	monitoring.Infof("max_angle %f, min_angle %f", d.cfg.MaxAngle, d.cfg.MinAngle)
	monitoring.Infof("resolution %f", d.cfg.Resolution)
	monitoring.Infof("sensors %d", scan.Len())

	d.state = StateOpening
	t, err := d.opener()
	if err != nil {
		d.state = StateClosed
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	cmd := rplidar.NewCommandChannel(t)
	cmd.SettleDelay = d.settleDelay

	if n, err := t.Flush(); err != nil {
		monitoring.Warnf("initial flush failed: %v", err)
	} else if n > 0 {
		monitoring.Debugf("cleanup performed, flushed %d chars", n)
	}

	d.state = StateHealthCheck
	health, err := d.checkHealth(cmd)
	if err != nil {
		d.abortOpen(t)
		return err
	}
	d.health = health
	monitoring.Infof("Sensor ready")

	if info, err := cmd.GetInfo(); err != nil {
		monitoring.Warnf("unable to read device info: %v", err)
		d.info = GenericDeviceInfo
		d.deviceInfo = nil
	} else {
		d.info = info.String()
		d.deviceInfo = &info
		monitoring.Infof("%s", d.info)
	}

	if err := cmd.Start(d.cfg.ForceScan); err != nil {
		monitoring.Errorf("Unable to put sensor in scan mode!")
		d.abortOpen(t)
		return handshakeError("start scan", err)
	}

	d.transport = t
	d.cmd = cmd
	d.rb = rb
	d.scan = scan
	d.decoder = rplidar.NewDecoder(rb, scan, d.cfg.Filter())
	d.readBuf = make([]byte, d.cfg.PacketSize)
	d.status = StatusStandby
	d.state = StateScanning
	d.cycles = 0

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.worker(d.cfg.PollInterval, d.stop, d.done)

	return nil
}

// checkHealth queries the sensor health, resetting once if it is unhealthy
func (d *Driver) checkHealth(cmd *rplidar.CommandChannel) (rplidar.Health, error) {
	h, err := cmd.GetHealth()
	if err == nil && h.OK() {
		return h, nil
	}

	if err != nil {
		monitoring.Warnf("health check failed: %v, attempt to recover", err)
	} else {
		monitoring.Warnf("Sensor in error status (%s), attempt to recover", rplidar.FormatHealth(h))
	}
	if err := cmd.Reset(); err != nil {
		monitoring.Warnf("reset failed: %v", err)
	}

	h, err = cmd.GetHealth()
	if err != nil {
		monitoring.Errorf("Unable to recover error")
		return h, handshakeError("health check after reset", err)
	}
	if !h.OK() {
		monitoring.Errorf("Unable to recover error")
		return h, fmt.Errorf("%w: sensor health %s after reset", rplidar.ErrHandshake, rplidar.FormatHealth(h))
	}
	monitoring.Infof("Sensor recovered from a previous error status")
	return h, nil
}

// abortOpen releases the transport after a failed Open
func (d *Driver) abortOpen(t rplidar.Transport) {
	if err := t.Close(); err != nil {
		monitoring.Warnf("close transport: %v", err)
	}
	d.state = StateClosed
}

// handshakeError makes sure err carries rplidar.ErrHandshake
func handshakeError(op string, err error) error {
	if errors.Is(err, rplidar.ErrHandshake) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, rplidar.ErrHandshake, err)
}

// worker invokes the poll cycle every interval until stop is closed
func (d *Driver) worker(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A stop that raced the tick wins
			select {
			case <-stop:
				return
			default:
			}
			d.runCycle()
		}
	}
}

// Close stops the poll cycle, takes the sensor out of scan mode and releases
// the transport. Closing a closed driver is a no-op.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return nil
	}
	if d.state != StateScanning {
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("cannot close while %s", state)
	}
	d.state = StateClosing
	stop, done := d.stop, d.done
	d.mu.Unlock()

	// The in-flight cycle, if any, finishes before the worker exits
	close(stop)
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cmd.Stop(); err != nil {
		monitoring.Errorf("Unable to stop sensor! %v", err)
		if err := d.cmd.Reset(); err != nil {
			monitoring.Errorf("reset after failed stop: %v", err)
		}
	}

	var closeErr error
	if err := d.transport.Close(); err != nil {
		closeErr = fmt.Errorf("close transport: %w", err)
	}

	// The last scan and its statistics stay readable after Close
	d.transport = nil
	d.cmd = nil
	d.rb = nil
	d.readBuf = nil
	d.stop = nil
	d.done = nil
	d.state = StateClosed
	return closeErr
}
