// Package history records lifecycle events as InfluxDB points.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/pkg/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	millisecondsPerSecond = 1000
)

var (
	ErrDisabled         = errors.New("influxdb: history disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

// Client owns the InfluxDB connection and its non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logrus.Logger
}

// Connect pings the server and prepares a batched write API. Write errors
// are delivered asynchronously and logged.
func Connect(ctx context.Context, cfg config.HistoryConfig, logger *logrus.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = logrus.New()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
	go c.logWriteErrors(c.writeAPI.Errors())

	logger.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"bucket": cfg.Bucket,
	}).Info("Connected to InfluxDB")
	return c, nil
}

// Writer returns the write API points are queued on
func (c *Client) Writer() api.WriteAPI {
	return c.writeAPI
}

func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.WithError(err).Warn("InfluxDB write failed")
	}
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}
