package modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Client wraps the Modbus TCP connection to the battery gateway and
// implements the coordinator's Transport over holding registers.
type Client struct {
	client  *modbus.ModbusClient
	mu      sync.Mutex
	host    string
	port    int
	unitID  uint8
	timeout time.Duration
}

func NewClient(host string, port int, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		host:    host,
		port:    port,
		unitID:  unitID,
		timeout: timeout,
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", c.host, c.port),
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to connect to battery: %w", err)
	}

	client.SetUnitId(c.unitID)
	c.client = client

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	return err
}

// ReadRegisters reads a contiguous holding-register block.
func (c *Client) ReadRegisters(start, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	regs, err := c.client.ReadRegisters(start, count, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read holding registers at %d: %w", start, err)
	}

	return regs, nil
}

// WriteRegisters writes a contiguous holding-register block.
func (c *Client) WriteRegisters(start uint16, words []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("client not connected")
	}

	var err error
	if len(words) == 1 {
		err = c.client.WriteRegister(start, words[0])
	} else {
		err = c.client.WriteRegisters(start, words)
	}
	if err != nil {
		return fmt.Errorf("failed to write holding registers at %d: %w", start, err)
	}

	return nil
}

// Reconnect tears down the TCP session and opens a fresh one. The
// coordinator calls it once after a failed read or write before
// retrying the operation.
func (c *Client) Reconnect() error {
	c.Close()
	return c.Connect()
}
