package core

import (
	"context"

	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/logger"
)

// maybeScheduleRefresh queues a best-effort refetch for an entry close
// to going stale, so interactive reads keep hitting fresh cache.
// Failures are logged and dropped.
func (c *Core) maybeScheduleRefresh(key cache.Key, entry cache.Entry) {
	if c.cfg.DisableBackgroundRefresh {
		return
	}
	if c.now().Before(entry.StaleAt.Add(-c.cfg.RefreshLead)) {
		return
	}

	c.stopLock.Lock()
	if c.stopped {
		c.stopLock.Unlock()
		return
	}
	c.refreshWG.Add(1)
	c.stopLock.Unlock()

	go func() {
		defer c.refreshWG.Done()
		ks := key.String()
		_, err, _ := c.refreshGroup.Do(ks, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BackgroundTimeout)
			defer cancel()
			return nil, c.refreshKey(ctx, key)
		})
		if err != nil {
			c.log.Debug("background refresh failed",
				logger.String("key", ks),
				logger.Err(err),
			)
		}
	}()
}

func (c *Core) refreshKey(ctx context.Context, key cache.Key) error {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}
	if _, err := c.fetchRemote(ctx, token, key); err != nil {
		return err
	}
	c.metrics.IncrementBackgroundRefreshes()
	return nil
}

// Stop drains background refreshes still in flight. No new ones are
// scheduled after it returns.
func (c *Core) Stop() {
	c.stopLock.Lock()
	c.stopped = true
	c.stopLock.Unlock()
	c.refreshWG.Wait()
}
