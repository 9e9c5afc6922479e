// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rangefinder

import "github.com/Thermoquad/scanstat/internal/monitoring"

// runCycle drains the transport into the ring buffer and decodes it down to
// the low-water mark. It holds the driver lock for its whole body.
func (d *Driver) runCycle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateScanning && d.state != StateClosing {
		return
	}
	d.cycles++

	if err := d.drain(); err != nil {
		if d.status != StatusError {
			monitoring.Errorf("transport read failed: %v", err)
		}
		d.status = StatusError
	}

	d.decoder.DecodeAbove(d.cfg.PacketSize, d.onSample)
}

// drain reads packet-sized bursts until the ring buffer holds two packets and
// the transport has nothing more to give. The loop is bounded by the free
// space and by MaxDrainReads.
func (d *Driver) drain() error {
	packet := d.cfg.PacketSize

	for reads := 0; reads < d.cfg.MaxDrainReads; reads++ {
		want := min(packet, d.rb.Free())
		if want == 0 {
			monitoring.Debugf("ring buffer full after %d reads", reads)
			return nil
		}

		n, err := d.transport.Receive(d.readBuf[:want])
		if n > 0 {
			if _, werr := d.rb.Write(d.readBuf[:n]); werr != nil {
				// Cannot happen while want <= Free()
				return werr
			}
			d.decoder.Statistics().RecordBytes(n)
		}
		if err != nil {
			return err
		}

		if n == 0 && d.rb.Size() >= 2*packet {
			return nil
		}
	}
	return nil
}
