// Copyright 2024 The Vigil Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package capture

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"
)

// LiveDefaultFilter captures everything interesting and lets the
// decode chain and internal/pipeline's PacketFilter narrow further.
const LiveDefaultFilter = "(tcp or udp or icmp) and ip"

// LiveOptions configures the live link-layer adapter.
type LiveOptions struct {
	Interface string
	Snaplen   int32
	Promisc   bool
	Filter    string
	Timeout   time.Duration

	// OpenRetries/OpenBackoff bound the retry-go backoff loop used to
	// open the interface; the adapter-fatal error surfaces only after
	// these are exhausted.
	OpenRetries int
	OpenBackoff time.Duration
}

// DefaultLiveOptions are full snaplen, non-promiscuous, and a generous
// BPF read timeout.
func DefaultLiveOptions(iface string) LiveOptions {
	return LiveOptions{
		Interface:   iface,
		Snaplen:     65535,
		Promisc:     false,
		Filter:      LiveDefaultFilter,
		Timeout:     time.Second,
		OpenRetries: 3,
		OpenBackoff: 200 * time.Millisecond,
	}
}

// Live captures real ethernet frames off a network interface via
// gopacket/pcap. Decoding past the raw bytes stays in internal/decode
// so the clamping and short-frame rejection invariants hold exactly;
// Live only sources frames and timestamps.
type Live struct {
	opts   LiveOptions
	log    *zap.SugaredLogger
	handle *pcap.Handle
	done   chan struct{}
}

// NewLive opens a live capture handle on opts.Interface, retrying with
// backoff up to opts.OpenRetries times before reporting an adapter-fatal
// error.
func NewLive(opts LiveOptions, log *zap.SugaredLogger) (*Live, error) {
	var handle *pcap.Handle
	err := retry.Do(
		func() error {
			h, err := pcap.OpenLive(opts.Interface, opts.Snaplen, opts.Promisc, opts.Timeout)
			if err != nil {
				return err
			}
			if opts.Filter != "" {
				if err := h.SetBPFFilter(opts.Filter); err != nil {
					h.Close()
					return err
				}
			}
			handle = h
			return nil
		},
		retry.Attempts(uint(opts.OpenRetries)),
		retry.Delay(opts.OpenBackoff),
		retry.OnRetry(func(n uint, err error) {
			if log != nil {
				log.Warnw("retrying interface open", "interface", opts.Interface, "attempt", n, "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", opts.Interface, err)
	}
	return &Live{opts: opts, log: log, handle: handle}, nil
}

// Start reads packets from the handle until Stop is called or the
// source returns EOF, invoking cb once per frame on this goroutine.
func (l *Live) Start(cb Callback) error {
	l.done = make(chan struct{})
	src := gopacket.NewPacketSource(l.handle, l.handle.LinkType())
	packets := src.Packets()
	for {
		select {
		case <-l.done:
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if pkt == nil {
				continue
			}
			md := pkt.Metadata()
			ts := time.Now()
			if md != nil && !md.Timestamp.IsZero() {
				ts = md.Timestamp
			}
			cb(Frame{Timestamp: ts, Data: pkt.Data(), LinkType: LinkEthernet})
		}
	}
}

// Stop closes the capture handle, unblocking any in-flight read.
func (l *Live) Stop() {
	select {
	case <-l.done:
	default:
		if l.done != nil {
			close(l.done)
		}
	}
	if l.handle != nil {
		l.handle.Close()
	}
}

var _ Source = (*Live)(nil)

// ListInterfaces returns every capturable interface name.
func ListInterfaces(_ context.Context) ([]string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate interfaces: %w", err)
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}
