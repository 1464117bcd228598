package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsSession    int64
	errorsReconciler int64
	warnsSession     int64
	warnsReconciler  int64
	framesRead       int64
	eventsRaised     int64
	reconnects       int64
	startedAt        = time.Now()
	channels         sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "session") {
		atomic.AddInt64(&warnsSession, 1)
	} else if strings.Contains(component, "reconciler") {
		atomic.AddInt64(&warnsReconciler, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "session") {
		atomic.AddInt64(&errorsSession, 1)
	} else if strings.Contains(component, "reconciler") {
		atomic.AddInt64(&errorsReconciler, 1)
	}
}

// IncrementFrameRead records one inbound frame of the given size.
func IncrementFrameRead(size int) {
	atomic.AddInt64(&framesRead, 1)
	recordChannel("stream_ws", size)
}

// IncrementEventRaised records one event handed to the dispatch queue.
func IncrementEventRaised() {
	atomic.AddInt64(&eventsRaised, 1)
}

// IncrementReconnect records one full transport teardown and redial.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

// StartReport begins periodic logging of runtime and stream statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(log *Log) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_session":    atomic.LoadInt64(&errorsSession),
		"errors_reconciler": atomic.LoadInt64(&errorsReconciler),
		"warns_session":     atomic.LoadInt64(&warnsSession),
		"warns_reconciler":  atomic.LoadInt64(&warnsReconciler),
		"frames_read":       atomic.LoadInt64(&framesRead),
		"events_raised":     atomic.LoadInt64(&eventsRaised),
		"reconnects":        atomic.LoadInt64(&reconnects),
		"goroutines":        runtime.NumGoroutine(),
		"heap_mb":           int64(memStats.HeapAlloc) / 1024 / 1024,
		"uptime_s":          int64(time.Since(startedAt).Seconds()),
		"channels":          channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
