// Package metrics re-exports rcrowley/go-metrics under the registry
// convention used across the codebase ("metrics.NewRegisteredCounter(name,
// nil)"), and adds an optional periodic reporter to InfluxDB.
package metrics

import (
	"time"

	influxclient "github.com/influxdata/influxdb/client"
	gometrics "github.com/rcrowley/go-metrics"
)

type Counter = gometrics.Counter
type Meter = gometrics.Meter

// Enabled gates the storage layer's compaction/disk-IO meters, matching the
// teacher's global metrics.Enabled switch (off by default; walletsyncd sets
// it when Metrics.InfluxDBEnabled is on in its config).
var Enabled = false

// NewRegisteredCounter matches the teacher's bridge_tx_pool.go call shape:
// metrics.NewRegisteredCounter("bridgeTxpool/refuse", nil).
func NewRegisteredCounter(name string, r gometrics.Registry) Counter {
	if r == nil {
		r = gometrics.DefaultRegistry
	}
	return gometrics.GetOrRegisterCounter(name, r)
}

// NewRegisteredMeter matches the teacher's leveldb_database.go call shape:
// metrics.NewRegisteredMeter(prefix+"compaction/time", nil).
func NewRegisteredMeter(name string, r gometrics.Registry) Meter {
	if r == nil {
		r = gometrics.DefaultRegistry
	}
	return gometrics.GetOrRegisterMeter(name, r)
}

// influxReporter pushes the default go-metrics registry to InfluxDB on an
// interval, mirroring go-ethereum/klaytn's metrics/influxdb reporter.
type influxReporter struct {
	reg       gometrics.Registry
	url       string
	database  string
	username  string
	password  string
	namespace string
	client    *influxclient.Client
}

// StartInfluxDBReporter starts the reporter goroutine. Reporting is
// best-effort; a dead InfluxDB must never stall the synchronizer. Only a
// client construction error is returned (and logged by the caller); a
// failed periodic write is discarded without logging.
func StartInfluxDBReporter(interval time.Duration, url, database, username, password, namespace string) (stop func(), err error) {
	c, err := influxclient.NewClient(influxclient.Config{
		URL:      url,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	r := &influxReporter{
		reg:       gometrics.DefaultRegistry,
		url:       url,
		database:  database,
		username:  username,
		password:  password,
		namespace: namespace,
		client:    c,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reportOnce()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }, nil
}

func (r *influxReporter) reportOnce() {
	pts := make([]influxclient.Point, 0)
	r.reg.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Counter:
			pts = append(pts, influxclient.Point{
				Measurement: r.namespace + name,
				Fields:      map[string]interface{}{"count": m.Count()},
			})
		case gometrics.Meter:
			pts = append(pts, influxclient.Point{
				Measurement: r.namespace + name,
				Fields:      map[string]interface{}{"count": m.Count(), "rate1": m.Rate1()},
			})
		}
	})
	if len(pts) == 0 {
		return
	}
	_, _ = r.client.Write(influxclient.BatchPoints{
		Points:   pts,
		Database: r.database,
	})
}
