// internal/bus/nats.go
package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const closeTimeout = 5 * time.Second

type Client struct {
	nc     *nats.Conn
	closed chan struct{}
}

func Connect(url string) (*Client, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("site-thumbnailer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, closed: closed}, nil
}

// Close flushes pending publishes, drains the connection and blocks until it
// is closed. Drain on its own is asynchronous.
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	_ = c.nc.FlushTimeout(closeTimeout)
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
	select {
	case <-c.closed:
	case <-time.After(closeTimeout):
		c.nc.Close()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}
