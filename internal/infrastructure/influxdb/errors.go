package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// main treats it as "run without metrics", not as a failure.
	ErrDisabled = errors.New("influxdb: metrics disabled")

	// ErrConnectionFailed means the startup ping failed or reported unhealthy.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")
)
