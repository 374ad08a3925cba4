// Package modbus owns the shared RS-485 bus. All sensor groups hang off one
// serial port, so register reads are serialized through a single mutex per
// physical bus; interleaved transactions would corrupt RTU framing.
package modbus

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goburrow/modbus"

	"github.com/karachiwx/awos/internal/config"
)

// Bus wraps an RTU client handler for one serial port.
type Bus struct {
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
	port    string
}

// Open connects to the serial port, retrying with exponential backoff for up
// to a minute before giving up. A bus that cannot be opened at all is fatal
// at startup.
func Open(cfg config.BusConf) (*Bus, error) {
	handler := modbus.NewRTUClientHandler(cfg.Port)
	handler.BaudRate = cfg.BaudRate
	handler.DataBits = cfg.DataBits
	handler.Parity = cfg.Parity
	handler.StopBits = cfg.StopBits
	handler.Timeout = cfg.Timeout.Std()

	connect := func() error {
		if err := handler.Connect(); err != nil {
			log.Printf("bus: connect %s: %v", cfg.Port, err)
			return err
		}
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("open bus %s: %w", cfg.Port, err)
	}

	return &Bus{
		handler: handler,
		client:  modbus.NewClient(handler),
		port:    cfg.Port,
	}, nil
}

// ReadHoldingRegisters performs one transaction against the given slave.
// The slave address switch and the read happen under the bus lock.
func (b *Bus) ReadHoldingRegisters(slave byte, address, quantity uint16) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handler.SlaveId = slave
	data, err := b.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, err
	}
	if len(data) != int(quantity)*2 {
		return nil, fmt.Errorf("slave %d: short read: got %d bytes, want %d", slave, len(data), quantity*2)
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return regs, nil
}

// Reconnect drops and re-establishes the serial connection. Used after
// persistent transaction failures.
func (b *Bus) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.handler.Close()
	if err := b.handler.Connect(); err != nil {
		return fmt.Errorf("reconnect bus %s: %w", b.port, err)
	}
	return nil
}

// Close releases the serial port.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler.Close()
}
