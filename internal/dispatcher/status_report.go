package dispatcher

import (
	"time"

	"onnxd/pkg/types"
)

// Snapshot returns a read-only view of the dispatcher state.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dispatcher) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      d.state,
		ModelPath:  d.modelPath,
		ModelReady: d.modelReady,
		QueueLen:   len(d.queue),
		InFlight:   d.current != nil,
		LastError:  d.lastErr,
	}
	if d.current != nil {
		s.CurrentCallID = d.current.ID
	}
	return s
}

// Status builds a detailed status response for /status.
func (d *Dispatcher) Status() types.StatusResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.snapshotLocked()
	now := time.Now()
	return types.StatusResponse{
		State:          string(s.State),
		ModelPath:      s.ModelPath,
		ModelReady:     s.ModelReady,
		QueueLen:       s.QueueLen,
		InFlight:       s.InFlight,
		CurrentCallID:  s.CurrentCallID,
		LastError:      s.LastError,
		LoadsTotal:     d.loadsTotal,
		RunsTotal:      d.runsTotal,
		UptimeSeconds:  int64(now.Sub(d.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}
