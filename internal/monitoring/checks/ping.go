package checks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
)

const defaultPingTimeout = 2 * time.Second

// Pinger is anything that can prove its backing connection is alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database pings the SQL connection pool behind db.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return pingCheck("database", timeout, func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

// Redis pings the shared cache. A nil client means the deployment runs
// without Redis and the probe reports up.
func Redis(client Pinger, timeout time.Duration) monitoring.Check {
	if client == nil {
		return monitoring.NewCheck("redis", func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		})
	}
	return pingCheck("redis", timeout, client.Ping)
}

func pingCheck(name string, timeout time.Duration, ping func(ctx context.Context) error) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return monitoring.ResultFromError(name, ping(probeCtx), time.Since(start))
	})
}
