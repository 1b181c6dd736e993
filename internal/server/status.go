package server

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"glowrs/pkg/types"
)

// Status builds the /status payload.
func (s *State) Status() types.StatusResponse {
	now := time.Now()
	resp := types.StatusResponse{
		State:          "unavailable",
		DefaultModel:   s.defaultModel,
		Models:         make([]types.ModelStatus, 0, len(s.models)),
		UptimeSeconds:  int64(now.Sub(s.startedAt).Seconds()),
		ServerTimeUnix: now.Unix(),
		Process:        processStatus(),
	}
	if s.Ready() {
		resp.State = "ready"
	}
	_, err := s.lookup("")
	resp.DefaultAvailable = err == nil

	for _, name := range s.Names() {
		e := s.models[name]
		st := e.executor.Stats()
		resp.Models = append(resp.Models, types.ModelStatus{
			Name:           name,
			Identifier:     e.identifier,
			Device:         s.device.String(),
			State:          string(st.State),
			QueueLen:       st.QueueLen,
			Processed:      st.Processed,
			Failed:         st.Failed,
			Dropped:        st.Dropped,
			LastError:      st.LastError,
			ReadySinceUnix: e.readyAt.Unix(),
		})
	}
	for _, f := range s.failures {
		resp.Failures = append(resp.Failures, types.LoadFailureStatus{
			Identifier: f.Identifier,
			Stage:      f.Stage,
			Error:      f.Err.Error(),
		})
	}
	return resp
}

// processStatus samples this process. Fields the platform cannot report
// stay zero.
func processStatus() *types.ProcessStatus {
	ps := &types.ProcessStatus{PID: int32(os.Getpid()), NumGoroutine: runtime.NumGoroutine()}
	p, err := process.NewProcess(ps.PID)
	if err != nil {
		return ps
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		ps.RSSBytes = mi.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		ps.NumThreads = n
	}
	return ps
}
